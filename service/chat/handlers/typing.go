package handlers

import (
	"encoding/json"

	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/tools/decode"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// TypingReq 输入状态目标，receiverId 与 groupId 必须且只能有一个
type TypingReq struct {
	ReceiverID string `json:"receiverId"`
	GroupID    string `json:"groupId"`
}

func (r *TypingReq) check() error {
	switch {
	case r.ReceiverID != "" && r.GroupID != "":
		return errs.ErrArgs.WrapMsg("receiverId and groupId are mutually exclusive")
	case r.ReceiverID == "" && r.GroupID == "":
		return errs.ErrArgs.WrapMsg("receiverId or groupId is required")
	}
	return nil
}

type TypingHandler struct {
	event string
	stop  bool
}

func NewTypingHandler() chat.Handler     { return &TypingHandler{event: "typing"} }
func NewStopTypingHandler() chat.Handler { return &TypingHandler{event: "stopTyping", stop: true} }

func (h *TypingHandler) Event() string { return h.event }

func (h *TypingHandler) Handle(ctx *chat.ChatContext, sock chat.Socket, data json.RawMessage) (any, error) {
	req, err := decode.Payload[TypingReq](data)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("decode "+h.event, "err", err)
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	logger.Debug("[Typing] "+h.event, zap.String("user", ctx.Identity.ID), zap.String("conn", sock.ID()),
		zap.String("receiver", req.ReceiverID), zap.String("group", req.GroupID))

	if h.stop {
		ctx.S.Fanout().StopTyping(ctx.Identity.ID, req.ReceiverID, req.GroupID)
	} else {
		ctx.S.Fanout().Typing(ctx.Identity.ID, req.ReceiverID, req.GroupID)
	}
	return nil, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"time"

	"PPGateway/service/chat"
	"PPGateway/tools/decode"
	"PPGateway/tools/errs"
)

const (
	maxStatusQuery = 500
	statusTimeout  = 2 * time.Second
)

type UserStatusReq struct {
	UserIDs []string `json:"userIds"`
}

type UserStatusHandler struct{}

func NewUserStatusHandler() chat.Handler { return &UserStatusHandler{} }

func (h *UserStatusHandler) Event() string { return "getUserStatus" }

// Handle answers userId -> {status, timestamp} for every requested identity.
func (h *UserStatusHandler) Handle(ctx *chat.ChatContext, _ chat.Socket, data json.RawMessage) (any, error) {
	req, err := decode.Payload[UserStatusReq](data)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("decode getUserStatus", "err", err)
	}
	if len(req.UserIDs) > maxStatusQuery {
		return nil, errs.ErrArgs.WrapMsg("too many userIds", "max", maxStatusQuery, "got", len(req.UserIDs))
	}
	ids := dedup(req.UserIDs)

	c, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	return ctx.S.UserStatus(c, ids), nil
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package handlers

import (
	"encoding/json"

	"PPGateway/service/chat"
)

// HeartbeatAck 应用层心跳回执（活跃时间已由 Server 在分发前刷新）
type HeartbeatAck struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type HeartbeatHandler struct{}

func NewHeartbeatHandler() chat.Handler { return &HeartbeatHandler{} }

func (h *HeartbeatHandler) Event() string { return "heartbeat" }

func (h *HeartbeatHandler) Handle(ctx *chat.ChatContext, _ chat.Socket, _ json.RawMessage) (any, error) {
	return HeartbeatAck{Status: "ok", Timestamp: ctx.S.Now().UnixMilli()}, nil
}

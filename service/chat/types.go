package chat

import (
	"context"
	"encoding/json"
	"time"

	"PPGateway/module/chat/model"
)

// Socket 一条活动的传输会话（一个设备的一条连接）
type Socket interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// Handler 处理客户端上行事件，返回值作为 ack 回给客户端
type Handler interface {
	Event() string
	Handle(ctx *ChatContext, sock Socket, data json.RawMessage) (any, error)
}

type ChatContext struct {
	S        *Server
	Identity model.Identity
}

// MessageLookup 由持久化层实现，网关通过它查询群成员关系与消息
type MessageLookup interface {
	GetUserGroups(ctx context.Context, userID string) ([]string, error)
	// FindMessageByID returns nil, nil when the message does not exist.
	FindMessageByID(ctx context.Context, messageID string) (*model.MessageRecord, error)
}

// PresenceMirror 跨节点在线状态镜像（可选）
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userIDs []string) error
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// GroupCacheInvalidator 由带缓存的 MessageLookup 实现
type GroupCacheInvalidator interface {
	InvalidateUserGroups(ctx context.Context, userIDs ...string)
}

type Clock func() time.Time

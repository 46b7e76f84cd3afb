package chat

import (
	"encoding/json"
	"strings"
	"time"

	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/service/metrics"

	"go.uber.org/zap"
)

// ---- 下行负载 ----

type NewMessagePayload struct {
	Type           string               `json:"type"` // user | group
	Message        *model.MessageRecord `json:"message"`
	Timestamp      time.Time            `json:"timestamp"`
	IsUserMessage  bool                 `json:"isUserMessage,omitempty"`
	IsGroupMessage bool                 `json:"isGroupMessage,omitempty"`
}

type TypingPayload struct {
	UserID     string    `json:"userId"`
	ReceiverID string    `json:"receiverId,omitempty"`
	GroupID    string    `json:"groupId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ReadPayload struct {
	MessageID string    `json:"messageId"`
	ReadBy    []string  `json:"readBy"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type RecallPayload struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type ReactionPayload struct {
	MessageID string          `json:"messageId"`
	Reactions json.RawMessage `json:"reactions"`
	UserID    string          `json:"userId"`
	Timestamp time.Time       `json:"timestamp"`
}

type DeletePayload struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	DeletedBy []string  `json:"deletedBy"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	GroupListAdded   = "added_to_group"
	GroupListRemoved = "removed_from_group"

	ConversationGroupDissolved = "group_dissolved"
)

type GroupListPayload struct {
	Action      string    `json:"action"`
	GroupID     string    `json:"groupId"`
	AddedByID   string    `json:"addedById,omitempty"`
	RemovedByID string    `json:"removedById,omitempty"`
	Kicked      *bool     `json:"kicked,omitempty"`
	Left        *bool     `json:"left,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type ConversationPayload struct {
	Action    string    `json:"action"`
	GroupID   string    `json:"groupId"`
	GroupName string    `json:"groupName"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type UserStatusPayload struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Fanout 根据消息类型选择目标房间并下发。调用方传入的消息只读，
// 打标签时总是先复制。
type Fanout struct {
	reg       *Registry
	transport *transportRef
	clock     Clock
}

func NewFanout(reg *Registry, transport *transportRef, clock Clock) *Fanout {
	if clock == nil {
		clock = time.Now
	}
	return &Fanout{reg: reg, transport: transport, clock: clock}
}

// ---- 消息 ----

// NotifyMessage routes a new message by its type.
func (f *Fanout) NotifyMessage(msg *model.MessageRecord) {
	if msg == nil {
		return
	}
	switch msg.Route() {
	case model.MessageTypeGroup:
		f.NotifyNewGroupMessage(msg)
	default:
		f.NotifyNewUserMessage(msg)
	}
}

func (f *Fanout) NotifyNewUserMessage(msg *model.MessageRecord) {
	b := f.ready("newUserMessage", zap.String("message", msg.ID))
	if b == nil {
		return
	}
	now := f.clock()
	payload := NewMessagePayload{
		Type:          "user",
		Message:       msg.WithType(model.MessageTypeUser),
		Timestamp:     now,
		IsUserMessage: true,
	}
	logger.Debug("[Fanout] user message", zap.String("message", msg.ID),
		zap.String("sender", msg.SenderID), zap.String("receiver", msg.ReceiverID))

	f.toRoom(b, PersonalRoom(msg.SenderID), EventNewMessage, payload)
	if msg.ReceiverID != "" {
		f.toRoom(b, PersonalRoom(msg.ReceiverID), EventNewMessage, payload)
		// 新消息隐式结束发送方的输入状态
		f.toRoom(b, PersonalRoom(msg.ReceiverID), EventUserTypingStopped, TypingPayload{
			UserID:    msg.SenderID,
			Timestamp: now,
		})
	}
}

func (f *Fanout) NotifyNewGroupMessage(msg *model.MessageRecord) {
	if msg.GroupID == "" {
		logger.Warn("[Fanout] group message without groupId", zap.String("message", msg.ID))
		return
	}
	b := f.ready("newGroupMessage", zap.String("message", msg.ID), zap.String("group", msg.GroupID))
	if b == nil {
		return
	}
	now := f.clock()
	room := GroupRoom(msg.GroupID)
	logger.Debug("[Fanout] group message", zap.String("message", msg.ID),
		zap.String("sender", msg.SenderID), zap.String("group", msg.GroupID))

	f.toRoom(b, room, EventNewMessage, NewMessagePayload{
		Type:           "group",
		Message:        msg.WithType(model.MessageTypeGroup),
		Timestamp:      now,
		IsGroupMessage: true,
	})
	f.toRoom(b, room, EventUserTypingStopped, TypingPayload{
		UserID:    msg.SenderID,
		GroupID:   msg.GroupID,
		Timestamp: now,
	})
}

// NotifyMessageWithMedia is a new-message emission for media-bearing messages;
// unlike NotifyNewUserMessage it does not emit typing-stopped.
func (f *Fanout) NotifyMessageWithMedia(msg *model.MessageRecord) {
	if msg == nil {
		return
	}
	b := f.ready("messageWithMedia", zap.String("message", msg.ID))
	if b == nil {
		return
	}
	now := f.clock()
	switch msg.Route() {
	case model.MessageTypeUser:
		payload := NewMessagePayload{Type: "user", Message: msg.WithType(model.MessageTypeUser), Timestamp: now, IsUserMessage: true}
		f.toRoom(b, PersonalRoom(msg.SenderID), EventNewMessage, payload)
		if msg.ReceiverID != "" {
			f.toRoom(b, PersonalRoom(msg.ReceiverID), EventNewMessage, payload)
		}
	case model.MessageTypeGroup:
		if msg.GroupID == "" {
			return
		}
		f.toRoom(b, GroupRoom(msg.GroupID), EventNewMessage, NewMessagePayload{
			Type:           "group",
			Message:        msg.WithType(model.MessageTypeGroup),
			Timestamp:      now,
			IsGroupMessage: true,
		})
	}
}

func (f *Fanout) NotifyMessageRead(msg *model.MessageRecord, userID string) {
	f.toMessageRooms(msg, EventMessageRead, ReadPayload{
		MessageID: msg.ID,
		ReadBy:    msg.ReadBy,
		UserID:    userID,
		Timestamp: f.clock(),
	})
}

func (f *Fanout) NotifyMessageRecalled(msg *model.MessageRecord, userID string) {
	f.toMessageRooms(msg, EventMessageRecalled, RecallPayload{
		MessageID: msg.ID,
		UserID:    userID,
		Timestamp: f.clock(),
	})
}

func (f *Fanout) NotifyMessageReactionUpdated(msg *model.MessageRecord, userID string) {
	f.toMessageRooms(msg, EventMessageReactionUpdated, ReactionPayload{
		MessageID: msg.ID,
		Reactions: msg.Reactions,
		UserID:    userID,
		Timestamp: f.clock(),
	})
}

// NotifyMessageDeleted only informs the deleting user ("delete for me").
func (f *Fanout) NotifyMessageDeleted(msg *model.MessageRecord, userID string) {
	b := f.ready(EventMessageDeleted, zap.String("message", msg.ID))
	if b == nil {
		return
	}
	f.toRoom(b, PersonalRoom(userID), EventMessageDeleted, DeletePayload{
		MessageID: msg.ID,
		UserID:    userID,
		DeletedBy: msg.DeletedBy,
		Timestamp: f.clock(),
	})
}

// toMessageRooms targets sender+receiver rooms for USER and the group room for GROUP.
func (f *Fanout) toMessageRooms(msg *model.MessageRecord, event string, payload any) {
	b := f.ready(event, zap.String("message", msg.ID))
	if b == nil {
		return
	}
	switch msg.Route() {
	case model.MessageTypeUser:
		f.toRoom(b, PersonalRoom(msg.SenderID), event, payload)
		if msg.ReceiverID != "" {
			f.toRoom(b, PersonalRoom(msg.ReceiverID), event, payload)
		}
	case model.MessageTypeGroup:
		if msg.GroupID != "" {
			f.toRoom(b, GroupRoom(msg.GroupID), event, payload)
		}
	}
}

// ---- 输入状态 ----

func (f *Fanout) Typing(userID, receiverID, groupID string) {
	f.typing(EventUserTyping, userID, receiverID, groupID)
}

func (f *Fanout) StopTyping(userID, receiverID, groupID string) {
	f.typing(EventUserTypingStopped, userID, receiverID, groupID)
}

func (f *Fanout) typing(event, userID, receiverID, groupID string) {
	b := f.ready(event, zap.String("user", userID))
	if b == nil {
		return
	}
	p := TypingPayload{UserID: userID, Timestamp: f.clock()}
	switch {
	case receiverID != "":
		p.ReceiverID = receiverID
		f.toRoom(b, PersonalRoom(receiverID), event, p)
	case groupID != "":
		p.GroupID = groupID
		f.toRoom(b, GroupRoom(groupID), event, p)
	}
}

// ---- 群与会话列表 ----

// NotifyGroupListUpdate tells userID to refresh its group list. The personal
// room is tried first; without a transport, or if it fails, every known
// connection of userID gets the event directly.
func (f *Fanout) NotifyGroupListUpdate(userID string, p GroupListPayload) {
	if p.Timestamp.IsZero() {
		p.Timestamp = f.clock()
	}
	b := f.transport.Load()
	if b == nil {
		logger.Warn("[Fanout] transport not ready, sending group list update direct", zap.String("user", userID))
		f.direct(userID, EventUpdateGroupList, p)
		return
	}
	f.toRoom(b, PersonalRoom(userID), EventUpdateGroupList, p)
}

func (f *Fanout) NotifyConversationRemoved(userID string, p ConversationPayload) {
	if p.Timestamp.IsZero() {
		p.Timestamp = f.clock()
	}
	b := f.transport.Load()
	if b == nil {
		logger.Warn("[Fanout] transport not ready, sending conversation update direct", zap.String("user", userID))
		f.direct(userID, EventUpdateConversationList, p)
		return
	}
	f.toRoom(b, PersonalRoom(userID), EventUpdateConversationList, p)
}

// ---- 在线状态 ----

// BroadcastUserStatus tells every connection about userID's status. Without
// a transport, or if the broadcast fails, it goes to each registered
// connection of this node directly.
func (f *Fanout) BroadcastUserStatus(userID, status string) {
	p := UserStatusPayload{UserID: userID, Status: status, Timestamp: f.clock()}
	b := f.transport.Load()
	if b == nil {
		logger.Warn("[Fanout] transport not ready, sending user status direct", zap.String("user", userID))
		f.sendEach(f.reg.All(), EventUserStatus, p)
		return
	}
	if err := b.EmitAll(EventUserStatus, p); err != nil {
		logger.Error("[Fanout] broadcast user status failed", zap.String("user", userID), zap.String("status", status), zap.Error(err))
		f.sendEach(f.reg.All(), EventUserStatus, p)
	}
}

// ---- 内部 ----

func (f *Fanout) ready(what string, fields ...zap.Field) Broadcaster {
	b := f.transport.Load()
	if b == nil {
		logger.Warn("[Fanout] transport not ready, dropping "+what, fields...)
	}
	return b
}

// toRoom emits to room. When a personal room emission fails the event is
// delivered to each connection of that user instead; other rooms are dropped.
func (f *Fanout) toRoom(b Broadcaster, room, event string, payload any) {
	err := b.EmitTo(room, event, payload)
	if err == nil {
		return
	}
	logger.Error("[Fanout] room emit failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
	if user, ok := strings.CutPrefix(room, userRoomPrefix); ok && user != "" {
		f.direct(user, event, payload)
	}
}

// direct sends to every live connection of userID, one socket at a time.
func (f *Fanout) direct(userID, event string, payload any) int {
	return f.sendEach(f.reg.Connections(userID), event, payload)
}

func (f *Fanout) sendEach(socks []Socket, event string, payload any) int {
	if len(socks) == 0 {
		return 0
	}
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		logger.Error("[Fanout] encode failed", zap.String("event", event), zap.Error(err))
		return 0
	}
	n := 0
	for _, s := range socks {
		if err := s.Send(frame); err != nil {
			logger.Error("[Fanout] direct send failed", zap.String("conn", s.ID()), zap.String("event", event), zap.Error(err))
			continue
		}
		n++
	}
	metrics.FallbackEmits.WithLabelValues(event).Add(float64(n))
	return n
}

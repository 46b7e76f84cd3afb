package model

import (
	"encoding/json"
	"time"
)

// MessageType 消息路由类型
type MessageType string

const (
	MessageTypeUser  MessageType = "USER"  // 单聊
	MessageTypeGroup MessageType = "GROUP" // 群聊
)

// MessageRecord 是由消息服务提供的消息快照，网关只转发不修改。
// 未识别的字段保存在 Extra 里，重新编码时原样输出。
type MessageRecord struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"senderId"`
	ReceiverID  string          `json:"receiverId,omitempty"`
	GroupID     string          `json:"groupId,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	MessageType MessageType     `json:"messageType,omitempty"`
	Reactions   json.RawMessage `json:"reactions,omitempty"`
	ReadBy      []string        `json:"readBy,omitempty"`
	DeletedBy   []string        `json:"deletedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = map[string]struct{}{
	"id": {}, "senderId": {}, "receiverId": {}, "groupId": {}, "content": {},
	"messageType": {}, "reactions": {}, "readBy": {}, "deletedBy": {},
	"createdAt": {}, "updatedAt": {},
}

// Clone returns a shallow copy whose slices and Extra map are not shared with m.
func (m *MessageRecord) Clone() *MessageRecord {
	if m == nil {
		return nil
	}
	c := *m
	if m.ReadBy != nil {
		c.ReadBy = append([]string(nil), m.ReadBy...)
	}
	if m.DeletedBy != nil {
		c.DeletedBy = append([]string(nil), m.DeletedBy...)
	}
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// WithType returns a copy tagged with t.
func (m *MessageRecord) WithType(t MessageType) *MessageRecord {
	c := m.Clone()
	c.MessageType = t
	return c
}

// Route 判断消息的路由类型；未显式标注时按 groupId 是否存在推断。
func (m *MessageRecord) Route() MessageType {
	if m.MessageType != "" {
		return m.MessageType
	}
	if m.GroupID != "" {
		return MessageTypeGroup
	}
	return MessageTypeUser
}

func (m MessageRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(knownFields))
	for k, v := range m.Extra {
		out[k] = v
	}
	out["id"] = m.ID
	out["senderId"] = m.SenderID
	if m.ReceiverID != "" {
		out["receiverId"] = m.ReceiverID
	}
	if m.GroupID != "" {
		out["groupId"] = m.GroupID
	}
	if len(m.Content) > 0 {
		out["content"] = m.Content
	}
	if m.MessageType != "" {
		out["messageType"] = m.MessageType
	}
	if len(m.Reactions) > 0 {
		out["reactions"] = m.Reactions
	}
	if m.ReadBy != nil {
		out["readBy"] = m.ReadBy
	}
	if m.DeletedBy != nil {
		out["deletedBy"] = m.DeletedBy
	}
	if !m.CreatedAt.IsZero() {
		out["createdAt"] = m.CreatedAt
	}
	if !m.UpdatedAt.IsZero() {
		out["updatedAt"] = m.UpdatedAt
	}
	return json.Marshal(out)
}

func (m *MessageRecord) UnmarshalJSON(b []byte) error {
	type plain MessageRecord
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range all {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	*m = MessageRecord(p)
	return nil
}

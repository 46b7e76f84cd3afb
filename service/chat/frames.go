package chat

import (
	"encoding/json"

	"PPGateway/tools/errs"
)

// 下行事件名
const (
	EventConnectionEstablished  = "connectionEstablished"
	EventConnectionError        = "connectionError"
	EventConnectionWarning      = "connectionWarning"
	EventUserStatus             = "userStatus"
	EventNewMessage             = "newMessage"
	EventUserTyping             = "userTyping"
	EventUserTypingStopped      = "userTypingStopped"
	EventMessageRead            = "messageRead"
	EventMessageRecalled        = "messageRecalled"
	EventMessageReactionUpdated = "messageReactionUpdated"
	EventMessageDeleted         = "messageDeleted"
	EventUpdateGroupList        = "updateGroupList"
	EventUpdateConversationList = "updateConversationList"
)

// InboundFrame 客户端上行帧
type InboundFrame struct {
	Event string          `json:"event"`
	ID    *int64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func ParseFrameJSON(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrInvalidPayload.WrapMsg("unmarshal frame failed", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrInvalidPayload.WrapMsg("frame has no event")
	}
	return &f, nil
}

// EncodeEvent builds the wire frame for a server-emitted event.
func EncodeEvent(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode event", "event", event)
	}
	return b, nil
}

func EncodeAck(event string, id *int64, payload any) ([]byte, error) {
	b, err := json.Marshal(outboundFrame{Event: event, Ack: id, Data: payload})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode ack", "event", event)
	}
	return b, nil
}

// Emit encodes and sends one event to a single socket.
func Emit(sock Socket, event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return sock.Send(frame)
}

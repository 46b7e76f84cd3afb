package eventbus

import (
	"time"

	"PPGateway/module/chat/model"
	"PPGateway/tools/errs"
)

var (
	MemberAdded     = Topic[MemberAddedEvent]{Name: "member.added"}
	MemberRemoved   = Topic[MemberRemovedEvent]{Name: "member.removed"}
	MessageRecalled = Topic[MessageRefEvent]{Name: "message.recalled"}
	MessageRead     = Topic[MessageRefEvent]{Name: "message.read"}
	GroupDissolved  = Topic[GroupDissolvedEvent]{Name: "group.dissolved"}

	// 消息服务经由网关推送
	MessageCreated         = Topic[MessageEvent]{Name: "message.created"}
	MessageReactionUpdated = Topic[MessageActorEvent]{Name: "message.reaction.updated"}
	MessageDeleted         = Topic[MessageActorEvent]{Name: "message.deleted"}
	MessageMedia           = Topic[MessageEvent]{Name: "message.media"}
)

type MemberAddedEvent struct {
	GroupID   string `json:"groupId"`
	UserID    string `json:"userId"`
	AddedByID string `json:"addedById"`
}

func (e MemberAddedEvent) Validate() error {
	if e.GroupID == "" || e.UserID == "" {
		return errs.ErrInvalidPayload.WrapMsg("member.added requires groupId and userId")
	}
	return nil
}

// MemberRemovedEvent Kicked / Left 互相独立，可都为空。
type MemberRemovedEvent struct {
	GroupID     string `json:"groupId"`
	UserID      string `json:"userId"`
	RemovedByID string `json:"removedById"`
	Kicked      *bool  `json:"kicked,omitempty"`
	Left        *bool  `json:"left,omitempty"`
}

func (e MemberRemovedEvent) Validate() error {
	if e.GroupID == "" || e.UserID == "" {
		return errs.ErrInvalidPayload.WrapMsg("member.removed requires groupId and userId")
	}
	return nil
}

// MessageRefEvent 只带消息 id，需要回查消息本体。
type MessageRefEvent struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

func (e MessageRefEvent) Validate() error {
	if e.MessageID == "" {
		return errs.ErrInvalidPayload.WrapMsg("messageId is required")
	}
	return nil
}

type GroupMemberRef struct {
	UserID string `json:"userId"`
}

type GroupDissolvedEvent struct {
	GroupID       string           `json:"groupId"`
	GroupName     string           `json:"groupName"`
	DissolvedByID string           `json:"dissolvedById"`
	Timestamp     time.Time        `json:"timestamp"`
	Members       []GroupMemberRef `json:"members"`
}

func (e GroupDissolvedEvent) Validate() error {
	if e.GroupID == "" {
		return errs.ErrInvalidPayload.WrapMsg("group.dissolved requires groupId")
	}
	return nil
}

// MemberIDs returns the member user ids carried by the event.
func (e GroupDissolvedEvent) MemberIDs() []string {
	out := make([]string, 0, len(e.Members))
	for _, m := range e.Members {
		if m.UserID != "" {
			out = append(out, m.UserID)
		}
	}
	return out
}

type MessageEvent struct {
	Message *model.MessageRecord `json:"message"`
}

func (e MessageEvent) Validate() error {
	return validateMessage(e.Message)
}

type MessageActorEvent struct {
	Message *model.MessageRecord `json:"message"`
	UserID  string               `json:"userId"`
}

func (e MessageActorEvent) Validate() error {
	if err := validateMessage(e.Message); err != nil {
		return err
	}
	if e.UserID == "" {
		return errs.ErrInvalidPayload.WrapMsg("userId is required", "message", e.Message.ID)
	}
	return nil
}

func validateMessage(m *model.MessageRecord) error {
	if m == nil {
		return errs.ErrInvalidPayload.WrapMsg("message is required")
	}
	if m.ID == "" || m.SenderID == "" {
		return errs.ErrInvalidPayload.WrapMsg("message requires id and senderId")
	}
	if m.ReceiverID == "" && m.GroupID == "" {
		return errs.ErrInvalidPayload.WrapMsg("message requires receiverId or groupId", "message", m.ID)
	}
	return nil
}

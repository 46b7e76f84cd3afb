package chat

import (
	"context"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/service/eventbus"
	"PPGateway/service/metrics"
	"PPGateway/tools/safe"

	"go.uber.org/zap"
)

// Bridge 把领域事件翻译成房间变更与下行通知
type Bridge struct {
	s      *Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge subscribes to every event the gateway reacts to.
func NewBridge(bus *eventbus.Bus, s *Server) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{s: s, ctx: ctx, cancel: cancel}

	eventbus.Subscribe(bus, eventbus.MemberAdded, b.onMemberAdded)
	eventbus.Subscribe(bus, eventbus.MemberRemoved, b.onMemberRemoved)
	eventbus.Subscribe(bus, eventbus.MessageRecalled, b.onMessageRecalled)
	eventbus.Subscribe(bus, eventbus.MessageRead, b.onMessageRead)
	eventbus.Subscribe(bus, eventbus.GroupDissolved, b.onGroupDissolved)

	eventbus.Subscribe(bus, eventbus.MessageCreated, func(_ context.Context, e eventbus.MessageEvent) {
		s.fanout.NotifyMessage(e.Message)
	})
	eventbus.Subscribe(bus, eventbus.MessageMedia, func(_ context.Context, e eventbus.MessageEvent) {
		s.fanout.NotifyMessageWithMedia(e.Message)
	})
	eventbus.Subscribe(bus, eventbus.MessageReactionUpdated, func(_ context.Context, e eventbus.MessageActorEvent) {
		s.fanout.NotifyMessageReactionUpdated(e.Message, e.UserID)
	})
	eventbus.Subscribe(bus, eventbus.MessageDeleted, func(_ context.Context, e eventbus.MessageActorEvent) {
		s.fanout.NotifyMessageDeleted(e.Message, e.UserID)
	})
	return b
}

func (b *Bridge) onMemberAdded(ctx context.Context, e eventbus.MemberAddedEvent) {
	logger.Debug("[Bridge] member added", zap.String("group", e.GroupID), zap.String("user", e.UserID))
	b.invalidate(ctx, e.UserID)

	socks := b.s.rooms.JoinRoom(e.UserID, GroupRoom(e.GroupID))
	if len(socks) == 0 {
		// 不在线：下次连接时会按群列表自动入房
		return
	}
	b.s.fanout.NotifyGroupListUpdate(e.UserID, GroupListPayload{
		Action:    GroupListAdded,
		GroupID:   e.GroupID,
		AddedByID: e.AddedByID,
	})
}

func (b *Bridge) onMemberRemoved(ctx context.Context, e eventbus.MemberRemovedEvent) {
	logger.Debug("[Bridge] member removed", zap.String("group", e.GroupID), zap.String("user", e.UserID))
	b.invalidate(ctx, e.UserID)

	socks := b.s.rooms.LeaveRoom(e.UserID, GroupRoom(e.GroupID))
	if len(socks) == 0 {
		return
	}
	b.s.fanout.NotifyGroupListUpdate(e.UserID, GroupListPayload{
		Action:      GroupListRemoved,
		GroupID:     e.GroupID,
		RemovedByID: e.RemovedByID,
		Kicked:      e.Kicked,
		Left:        e.Left,
	})
}

func (b *Bridge) onMessageRecalled(_ context.Context, e eventbus.MessageRefEvent) {
	b.withMessage(eventbus.MessageRecalled.Name, e, func(msg *model.MessageRecord) {
		b.s.fanout.NotifyMessageRecalled(msg, e.UserID)
	})
}

func (b *Bridge) onMessageRead(_ context.Context, e eventbus.MessageRefEvent) {
	b.withMessage(eventbus.MessageRead.Name, e, func(msg *model.MessageRecord) {
		b.s.fanout.NotifyMessageRead(msg, e.UserID)
	})
}

// withMessage resolves the message in its own task and calls notify with it.
// A message that no longer resolves is dropped silently.
func (b *Bridge) withMessage(event string, e eventbus.MessageRefEvent, notify func(*model.MessageRecord)) {
	lookup := b.s.lookup
	if lookup == nil {
		logger.Warn("[Bridge] no message lookup configured, dropping", zap.String("event", event), zap.String("message", e.MessageID))
		return
	}
	b.wg.Add(1)
	safe.Go("bridge:"+event, func() {
		defer b.wg.Done()
		start := time.Now()
		msg, err := lookup.FindMessageByID(b.ctx, e.MessageID)
		metrics.LookupLatency.WithLabelValues("find_message").Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Error("[Bridge] find message failed", zap.String("event", event), zap.String("message", e.MessageID), zap.Error(err))
			return
		}
		if msg == nil {
			logger.Debug("[Bridge] message not found, dropping", zap.String("event", event), zap.String("message", e.MessageID))
			return
		}
		notify(msg)
	})
}

func (b *Bridge) onGroupDissolved(ctx context.Context, e eventbus.GroupDissolvedEvent) {
	room := GroupRoom(e.GroupID)
	logger.Debug("[Bridge] group dissolved", zap.String("group", e.GroupID), zap.Int("members", len(e.Members)))

	if err := b.s.rooms.DissolveRoom(room); err != nil {
		logger.Error("[Bridge] remove sockets from room failed", zap.String("room", room), zap.Error(err))
	}

	members := e.MemberIDs()
	b.invalidate(ctx, members...)

	ts := e.Timestamp
	if ts.IsZero() {
		ts = b.s.Now()
	}
	for _, uid := range members {
		if uid == e.DissolvedByID {
			continue
		}
		b.s.fanout.NotifyConversationRemoved(uid, ConversationPayload{
			Action:    ConversationGroupDissolved,
			GroupID:   e.GroupID,
			GroupName: e.GroupName,
			Timestamp: ts,
		})
	}
}

func (b *Bridge) invalidate(ctx context.Context, userIDs ...string) {
	if inv, ok := b.s.lookup.(GroupCacheInvalidator); ok && len(userIDs) > 0 {
		inv.InvalidateUserGroups(ctx, userIDs...)
	}
}

// Wait blocks until every in-flight message lookup finished.
func (b *Bridge) Wait() { b.wg.Wait() }

// Close cancels pending lookups and waits for them.
func (b *Bridge) Close() {
	b.cancel()
	b.wg.Wait()
}

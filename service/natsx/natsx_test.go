package natsx

import (
	"context"
	"testing"
	"time"

	"PPGateway/service/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, Core, ParseMode(""))
	assert.Equal(t, Core, ParseMode("core"))
	assert.Equal(t, JetStreamPush, ParseMode("JetStream"))
	assert.Equal(t, JetStreamPush, ParseMode("js_push"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, m NatsxMessage) error {
				order = append(order, name)
				return next(ctx, m)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))

	require.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestIdemMiddlewareDropsRedelivery(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()

	calls := 0
	h := NatsxIdemMiddleware(store, 0)(func(context.Context, NatsxMessage) error {
		calls++
		return nil
	})
	ctx := context.Background()
	msg := NatsxMessage{Subject: "im.events.member.added", Header: map[string]string{HeaderMsgID: "abc"}}
	require.NoError(t, h(ctx, msg))
	require.NoError(t, h(ctx, msg))
	assert.Equal(t, 1, calls)

	// 无 msgID 不去重
	require.NoError(t, h(ctx, NatsxMessage{Subject: "x", Data: []byte("{}")}))
	require.NoError(t, h(ctx, NatsxMessage{Subject: "x", Data: []byte("{}")}))
	assert.Equal(t, 3, calls)
}

func TestMemIdemExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemIdem(time.Minute)
	defer store.Close()
	store.now = func() time.Time { return now }

	seen, _ := store.SeenOnce("k", 0)
	assert.False(t, seen)
	seen, _ = store.SeenOnce("k", 0)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	store.purge()
	seen, _ = store.SeenOnce("k", 0)
	assert.False(t, seen)
}

func TestSourceNaming(t *testing.T) {
	s := NewSource(nil, eventbus.New(), SourceConf{NodeID: "gw.01", SubjectPrefix: "im.events."})
	assert.Equal(t, "im.events.member.added", s.Subject("member.added"))
	assert.Equal(t, "gw_gw_01_member_added", s.durable("member.added"))
}

func TestSourceHandleFeedsBus(t *testing.T) {
	bus := eventbus.New()
	var got []eventbus.MemberAddedEvent
	eventbus.Subscribe(bus, eventbus.MemberAdded, func(_ context.Context, e eventbus.MemberAddedEvent) {
		got = append(got, e)
	})
	s := NewSource(nil, bus, SourceConf{SubjectPrefix: "im.events."})

	h := s.handle("member.added")
	ctx := context.Background()
	require.NoError(t, h(ctx, NatsxMessage{Subject: "im.events.member.added", Data: []byte(`{"groupId":"g1","userId":"u2"}`)}))
	// 坏负载只记日志，不要求重投
	require.NoError(t, h(ctx, NatsxMessage{Subject: "im.events.member.added", Data: []byte(`{"groupId":"g1"}`)}))
	require.NoError(t, s.handle("nope")(ctx, NatsxMessage{Data: []byte(`{}`)}))

	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].UserID)
}

package eventbus

import (
	"context"
	"testing"

	"PPGateway/module/chat/model"
	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishTyped(t *testing.T) {
	b := New()
	var got []MemberAddedEvent
	Subscribe(b, MemberAdded, func(_ context.Context, e MemberAddedEvent) { got = append(got, e) })

	require.NoError(t, Publish(context.Background(), b, MemberAdded, MemberAddedEvent{GroupID: "g1", UserID: "u1"}))
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].GroupID)

	err := Publish(context.Background(), b, MemberAdded, MemberAddedEvent{GroupID: "g1"})
	assert.True(t, errs.ErrInvalidPayload.Is(err))
	assert.Len(t, got, 1)
}

func TestPublishRawKeepsOrderAndFlags(t *testing.T) {
	b := New()
	var order []string
	Subscribe(b, MemberRemoved, func(_ context.Context, e MemberRemovedEvent) {
		order = append(order, "first")
		require.NotNil(t, e.Kicked)
		assert.True(t, *e.Kicked)
		assert.Nil(t, e.Left)
	})
	Subscribe(b, MemberRemoved, func(_ context.Context, e MemberRemovedEvent) { order = append(order, "second") })

	err := b.PublishRaw(context.Background(), "member.removed", []byte(`{"groupId":"g","userId":"u","removedById":"a","kicked":true}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishRawErrors(t *testing.T) {
	b := New()
	Subscribe(b, MessageRead, func(context.Context, MessageRefEvent) {})

	assert.True(t, errs.ErrUnknownEvent.Is(b.PublishRaw(context.Background(), "nope", []byte(`{}`))))
	assert.True(t, errs.ErrInvalidPayload.Is(b.PublishRaw(context.Background(), "message.read", []byte(`{`))))
	assert.True(t, errs.ErrInvalidPayload.Is(b.PublishRaw(context.Background(), "message.read", []byte(`{}`))))
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	b := New()
	called := false
	Subscribe(b, MessageCreated, func(context.Context, MessageEvent) { panic("boom") })
	Subscribe(b, MessageCreated, func(context.Context, MessageEvent) { called = true })

	msg := &model.MessageRecord{ID: "m1", SenderID: "u1", ReceiverID: "u2"}
	require.NoError(t, Publish(context.Background(), b, MessageCreated, MessageEvent{Message: msg}))
	assert.True(t, called)
}

func TestMessageValidation(t *testing.T) {
	assert.Error(t, MessageEvent{}.Validate())
	assert.Error(t, MessageEvent{Message: &model.MessageRecord{ID: "m", SenderID: "s"}}.Validate())
	assert.Error(t, MessageActorEvent{Message: &model.MessageRecord{ID: "m", SenderID: "s", GroupID: "g"}}.Validate())
	assert.NoError(t, MessageActorEvent{Message: &model.MessageRecord{ID: "m", SenderID: "s", GroupID: "g"}, UserID: "u"}.Validate())
}

func TestDissolvedMemberIDs(t *testing.T) {
	e := GroupDissolvedEvent{Members: []GroupMemberRef{{UserID: "a"}, {}, {UserID: "b"}}}
	assert.Equal(t, []string{"a", "b"}, e.MemberIDs())
}

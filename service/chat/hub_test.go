package chat

import (
	"errors"
	"testing"

	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubEmitToRoomMembersOnly(t *testing.T) {
	h := NewHub()
	a, b, c := newFakeSocket("a"), newFakeSocket("b"), newFakeSocket("c")
	require.NoError(t, h.Join(a, "group:g1"))
	require.NoError(t, h.Join(b, "group:g1"))
	require.NoError(t, h.Join(c, "user:u3"))

	require.NoError(t, h.EmitTo("group:g1", EventNewMessage, map[string]string{"id": "m1"}))
	assert.Equal(t, []string{EventNewMessage}, a.events())
	assert.Equal(t, []string{EventNewMessage}, b.events())
	assert.Empty(t, c.events())

	require.NoError(t, h.EmitTo("group:empty", EventNewMessage, nil))
}

func TestHubEmitAllReachesEverySocketOnce(t *testing.T) {
	h := NewHub()
	a, b := newFakeSocket("a"), newFakeSocket("b")
	require.NoError(t, h.Join(a, "user:u1"))
	require.NoError(t, h.Join(a, "group:g1"))
	require.NoError(t, h.Join(b, "user:u2"))

	require.NoError(t, h.EmitAll(EventUserStatus, nil))
	assert.Len(t, a.events(), 1)
	assert.Len(t, b.events(), 1)
}

func TestHubLeave(t *testing.T) {
	h := NewHub()
	a := newFakeSocket("a")
	require.NoError(t, h.Join(a, "user:u1"))
	require.NoError(t, h.Join(a, "group:g1"))

	h.Leave("a", "group:g1")
	assert.Equal(t, []string{"user:u1"}, h.Rooms("a"))

	h.LeaveAll("a")
	assert.Empty(t, h.Rooms("a"))
	assert.Empty(t, h.Members("user:u1"))
}

func TestHubSocketsLeave(t *testing.T) {
	h := NewHub()
	a, b := newFakeSocket("a"), newFakeSocket("b")
	require.NoError(t, h.Join(a, "group:g1"))
	require.NoError(t, h.Join(b, "group:g1"))
	require.NoError(t, h.Join(a, "user:u1"))

	require.NoError(t, h.SocketsLeave("group:g1"))
	assert.Empty(t, h.Members("group:g1"))
	assert.Equal(t, []string{"user:u1"}, h.Rooms("a"))
}

func TestHubSendErrorDoesNotFailEmit(t *testing.T) {
	h := NewHub()
	bad, good := newFakeSocket("bad"), newFakeSocket("good")
	bad.sendErr = errors.New("queue full")
	require.NoError(t, h.Join(bad, "group:g1"))
	require.NoError(t, h.Join(good, "group:g1"))

	assert.NoError(t, h.EmitTo("group:g1", EventNewMessage, nil))
	assert.Len(t, good.events(), 1)
}

func TestHubClosed(t *testing.T) {
	h := NewHub()
	require.NoError(t, h.Join(newFakeSocket("a"), "user:u1"))
	h.Close()

	err := h.EmitTo("user:u1", EventNewMessage, nil)
	assert.True(t, errs.ErrTransportClosed.Is(err))
	assert.Error(t, h.Join(newFakeSocket("b"), "user:u2"))
	assert.Error(t, h.EmitAll(EventUserStatus, nil))
}

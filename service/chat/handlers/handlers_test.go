package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PPGateway/module/chat/model"
	"PPGateway/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

type recSocket struct {
	id     string
	mu     sync.Mutex
	frames []frame
}

func (s *recSocket) ID() string   { return s.id }
func (s *recSocket) Close() error { return nil }
func (s *recSocket) Send(b []byte) error {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *recSocket) take() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.frames
	s.frames = nil
	return out
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) *chat.Server {
	s := chat.NewServer(chat.ServerConf{Clock: func() time.Time { return fixedNow }}, nil)
	s.Attach(s.Hub())
	RegisterAll(s)
	return s
}

// joinAll connects one socket per user and drops the connect-time frames.
func joinAll(s *chat.Server, users ...string) []*recSocket {
	out := make([]*recSocket, 0, len(users))
	for _, u := range users {
		sock := &recSocket{id: "c-" + u}
		s.HandleConnect(context.Background(), model.Identity{ID: u}, sock)
		out = append(out, sock)
	}
	for _, sock := range out {
		sock.take()
	}
	return out
}

func join(s *chat.Server, user string) *recSocket { return joinAll(s, user)[0] }

func TestHeartbeat(t *testing.T) {
	s := newServer(t)
	c := join(s, "u1")

	s.HandleFrame(c, []byte(`{"event":"heartbeat","id":1}`))
	fs := c.take()
	require.Len(t, fs, 1)
	var ack HeartbeatAck
	require.NoError(t, json.Unmarshal(fs[0].Data, &ack))
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, fixedNow.UnixMilli(), ack.Timestamp)
}

func TestTypingToReceiver(t *testing.T) {
	s := newServer(t)
	cs := joinAll(s, "u1", "u2")
	sender, receiver := cs[0], cs[1]

	s.HandleFrame(sender, []byte(`{"event":"typing","data":{"receiverId":"u2"}}`))
	assert.Empty(t, sender.take())
	fs := receiver.take()
	require.Len(t, fs, 1)
	assert.Equal(t, chat.EventUserTyping, fs[0].Event)
	assert.JSONEq(t, `{"userId":"u1","receiverId":"u2","timestamp":"2024-05-01T12:00:00Z"}`, string(fs[0].Data))

	s.HandleFrame(sender, []byte(`{"event":"stopTyping","data":{"receiverId":"u2"}}`))
	fs = receiver.take()
	require.Len(t, fs, 1)
	assert.Equal(t, chat.EventUserTypingStopped, fs[0].Event)
}

func TestTypingNumericReceiver(t *testing.T) {
	s := newServer(t)
	cs := joinAll(s, "u1", "42")
	sender, receiver := cs[0], cs[1]

	s.HandleFrame(sender, []byte(`{"event":"typing","data":{"receiverId":42}}`))
	assert.Len(t, receiver.take(), 1)
}

func TestTypingRejectsAmbiguousTarget(t *testing.T) {
	s := newServer(t)
	cs := joinAll(s, "u1", "u2")
	sender, receiver := cs[0], cs[1]

	for _, data := range []string{`{"receiverId":"u2","groupId":"g1"}`, `{}`} {
		s.HandleFrame(sender, []byte(`{"event":"typing","id":9,"data":`+data+`}`))
		fs := sender.take()
		require.Len(t, fs, 1, data)
		var ack chat.ErrorAck
		require.NoError(t, json.Unmarshal(fs[0].Data, &ack))
		assert.Equal(t, "error", ack.Status)
	}
	assert.Empty(t, receiver.take())
}

func TestGetUserStatus(t *testing.T) {
	s := newServer(t)
	c := join(s, "u1")

	s.HandleFrame(c, []byte(`{"event":"getUserStatus","id":2,"data":{"userIds":["u1","u9","u1",""]}}`))
	fs := c.take()
	require.Len(t, fs, 1)
	var got map[string]chat.UserStatusEntry
	require.NoError(t, json.Unmarshal(fs[0].Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, chat.StatusOnline, got["u1"].Status)
	assert.Equal(t, chat.StatusOffline, got["u9"].Status)
	assert.Equal(t, fixedNow.UnixMilli(), got["u9"].Timestamp)
}

func TestGetUserStatusBadPayload(t *testing.T) {
	s := newServer(t)
	c := join(s, "u1")

	s.HandleFrame(c, []byte(`{"event":"getUserStatus","id":3,"data":[1,2]}`))
	fs := c.take()
	require.Len(t, fs, 1)
	assert.Contains(t, string(fs[0].Data), `"status":"error"`)
}

func TestTypingCountsAsActivity(t *testing.T) {
	now := fixedNow
	s := chat.NewServer(chat.ServerConf{Clock: func() time.Time { return now }}, nil)
	s.Attach(s.Hub())
	RegisterAll(s)
	c := join(s, "u1")

	now = now.Add(4 * time.Minute)
	s.HandleFrame(c, []byte(`{"event":"typing","data":{"groupId":"g1"}}`))
	now = now.Add(2 * time.Minute)

	assert.Empty(t, s.Monitor().SweepOnce(now))
	assert.True(t, s.Registry().IsOnline("u1"))
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"PPGateway/module/chat/model"
)

type sentFrame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

// fakeSocket records every frame written to it.
type fakeSocket struct {
	id string

	mu      sync.Mutex
	frames  []sentFrame
	closed  bool
	sendErr error
}

func newFakeSocket(id string) *fakeSocket { return &fakeSocket{id: id} }

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	var f sentFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Event)
	}
	return out
}

func (s *fakeSocket) framesOf(event string) []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentFrame
	for _, f := range s.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

// dataOf decodes the payload of the n-th frame of event.
func dataOf(s *fakeSocket, event string, n int) map[string]any {
	fs := s.framesOf(event)
	if n >= len(fs) {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(fs[n].Data, &m)
	return m
}

// statusEvents counts userStatus frames for user with status.
func statusEvents(s *fakeSocket, user, status string) int {
	n := 0
	for i := range s.framesOf(EventUserStatus) {
		d := dataOf(s, EventUserStatus, i)
		if d["userId"] == user && d["status"] == status {
			n++
		}
	}
	return n
}

// statusesOf lists the statuses announced for user, in order.
func statusesOf(s *fakeSocket, user string) []string {
	var out []string
	for i := range s.framesOf(EventUserStatus) {
		if d := dataOf(s, EventUserStatus, i); d["userId"] == user {
			out = append(out, d["status"].(string))
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeLookup serves group memberships and messages from memory.
type fakeLookup struct {
	mu          sync.Mutex
	groups      map[string][]string
	messages    map[string]*model.MessageRecord
	groupsErr   error
	groupCalls  int
	invalidated []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		groups:   make(map[string][]string),
		messages: make(map[string]*model.MessageRecord),
	}
}

func (l *fakeLookup) GetUserGroups(_ context.Context, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.groupCalls++
	if l.groupsErr != nil {
		return nil, l.groupsErr
	}
	return l.groups[userID], nil
}

func (l *fakeLookup) FindMessageByID(_ context.Context, id string) (*model.MessageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.messages[id], nil
}

func (l *fakeLookup) InvalidateUserGroups(_ context.Context, userIDs ...string) {
	l.mu.Lock()
	l.invalidated = append(l.invalidated, userIDs...)
	l.mu.Unlock()
}

func (l *fakeLookup) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groupCalls
}

// failingRooms is a transport whose room emissions always fail.
type failingRooms struct {
	*Hub
}

var errEmit = errors.New("adapter down")

func (f failingRooms) EmitTo(room, event string, payload any) error { return errEmit }

// fakePresence keeps mirrored presence in memory.
type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	sets   int
	clears int
}

func newFakePresence() *fakePresence { return &fakePresence{online: make(map[string]bool)} }

func (p *fakePresence) SetOnline(_ context.Context, u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[u] = true
	p.sets++
	return nil
}

func (p *fakePresence) SetOffline(_ context.Context, u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, u)
	p.clears++
	return nil
}

func (p *fakePresence) Refresh(_ context.Context, us []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range us {
		p.online[u] = true
	}
	return nil
}

func (p *fakePresence) Online(_ context.Context, us []string) (map[string]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(us))
	for _, u := range us {
		out[u] = p.online[u]
	}
	return out, nil
}

func (p *fakePresence) isOnline(u string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[u]
}

// newTestServer builds a server on the in-process hub with a controllable clock.
func newTestServer(lookup MessageLookup, opts ...Option) (*Server, *fakeClock) {
	clk := newFakeClock()
	s := NewServer(ServerConf{NodeID: "test", Clock: clk.Now}, lookup, opts...)
	s.Attach(s.Hub())
	return s, clk
}

func connect(s *Server, user, connID string) *fakeSocket {
	sock := newFakeSocket(connID)
	s.HandleConnect(context.Background(), model.Identity{ID: user}, sock)
	return sock
}

// echoHandler answers with its input; used to drive HandleFrame.
type echoHandler struct{}

func (echoHandler) Event() string { return "echo" }

func (echoHandler) Handle(_ *ChatContext, _ Socket, data json.RawMessage) (any, error) {
	return data, nil
}

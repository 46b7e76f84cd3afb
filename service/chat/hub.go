package chat

import (
	"sync"

	"PPGateway/logger"
	"PPGateway/service/metrics"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// Broadcaster 传输层的房间广播能力
type Broadcaster interface {
	Join(sock Socket, room string) error
	Leave(connID, room string)
	LeaveAll(connID string)
	// SocketsLeave forces every socket out of room.
	SocketsLeave(room string) error
	EmitTo(room, event string, payload any) error
	EmitAll(event string, payload any) error
}

// Hub 进程内的房间表：room -> 连接，连接 -> room。
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Socket // room -> conn_id -> socket
	byConn  map[string]map[string]struct{}
	sockets map[string]Socket
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[string]Socket),
		byConn:  make(map[string]map[string]struct{}),
		sockets: make(map[string]Socket),
	}
}

func (h *Hub) Join(sock Socket, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errs.ErrTransportClosed.WrapMsg("join", "room", room)
	}
	id := sock.ID()
	m := h.rooms[room]
	if m == nil {
		m = make(map[string]Socket)
		h.rooms[room] = m
	}
	m[id] = sock
	rs := h.byConn[id]
	if rs == nil {
		rs = make(map[string]struct{})
		h.byConn[id] = rs
	}
	rs[room] = struct{}{}
	h.sockets[id] = sock
	return nil
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
}

func (h *Hub) leaveLocked(connID, room string) {
	if m := h.rooms[room]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
	if rs := h.byConn[connID]; rs != nil {
		delete(rs, room)
		if len(rs) == 0 {
			delete(h.byConn, connID)
			delete(h.sockets, connID)
		}
	}
}

func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.byConn[connID] {
		h.leaveLocked(connID, room)
	}
	delete(h.byConn, connID)
	delete(h.sockets, connID)
}

func (h *Hub) SocketsLeave(room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errs.ErrTransportClosed.WrapMsg("sockets leave", "room", room)
	}
	for id := range h.rooms[room] {
		h.leaveLocked(id, room)
	}
	return nil
}

func (h *Hub) EmitTo(room, event string, payload any) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return errs.ErrTransportClosed.WrapMsg("emit", "room", room, "event", event)
	}
	targets := make([]Socket, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	return h.send(targets, room, event, payload)
}

func (h *Hub) EmitAll(event string, payload any) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return errs.ErrTransportClosed.WrapMsg("broadcast", "event", event)
	}
	targets := make([]Socket, 0, len(h.sockets))
	for _, s := range h.sockets {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	return h.send(targets, "*", event, payload)
}

// send encodes once and writes to every target outside the lock. A slow or
// closed socket is logged and skipped, it never fails the room emission.
func (h *Hub) send(targets []Socket, room, event string, payload any) error {
	if len(targets) == 0 {
		return nil
	}
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	for _, s := range targets {
		if err := s.Send(frame); err != nil {
			logger.Warn("[Hub] send failed", zap.String("room", room), zap.String("event", event),
				zap.String("conn", s.ID()), zap.Error(err))
		}
	}
	metrics.EmittedEvents.WithLabelValues(event).Add(float64(len(targets)))
	return nil
}

func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byConn[connID]))
	for r := range h.byConn[connID] {
		out = append(out, r)
	}
	return out
}

func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		out = append(out, id)
	}
	return out
}

// Close rejects further joins and emissions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.rooms = make(map[string]map[string]Socket)
	h.byConn = make(map[string]map[string]struct{})
	h.sockets = make(map[string]Socket)
}

package chat

import (
	"sync"
	"time"

	"PPGateway/module/chat/model"
)

type entry struct {
	identity   model.Identity
	sock       Socket
	lastActive time.Time
}

// Registry 双向索引：user -> 连接集合，连接 -> user，外加每条连接的最近活跃时间。
// 两个索引在同一把锁下修改，外部观察到的永远是一致状态。
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Socket // user -> conn_id -> socket
	byConn map[string]*entry            // conn_id -> entry
	clock  Clock
}

func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		byUser: make(map[string]map[string]Socket),
		byConn: make(map[string]*entry),
		clock:  clock,
	}
}

// Add registers sock under id and stamps it active. first reports whether
// this is the identity's only connection, i.e. it just came online.
func (r *Registry) Add(id model.Identity, sock Socket) (first bool) {
	connID := sock.ID()
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byConn[connID]; ok {
		if e.identity.ID == id.ID {
			e.sock = sock
			r.byUser[id.ID][connID] = sock
			if now.After(e.lastActive) {
				e.lastActive = now
			}
			return false
		}
		// conn id 只能属于一个用户
		r.dropLocked(e.identity.ID, connID)
	}

	m := r.byUser[id.ID]
	if m == nil {
		m = make(map[string]Socket)
		r.byUser[id.ID] = m
	}
	first = len(m) == 0
	m[connID] = sock
	r.byConn[connID] = &entry{identity: id, sock: sock, lastActive: now}
	return first
}

// Remove deletes connID from userID's set. last reports whether userID has
// no connections left. Unknown pairs are a no-op.
func (r *Registry) Remove(userID, connID string) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byConn[connID]
	if !ok || e.identity.ID != userID {
		return false, false
	}
	return true, r.dropLocked(userID, connID)
}

func (r *Registry) dropLocked(userID, connID string) (last bool) {
	delete(r.byConn, connID)
	m := r.byUser[userID]
	if m == nil {
		return false
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// Touch refreshes the activity timestamp; it never moves backwards.
func (r *Registry) Touch(connID string) bool {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byConn[connID]
	if !ok {
		return false
	}
	if now.After(e.lastActive) {
		e.lastActive = now
	}
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Connections lists the live sockets of userID.
func (r *Registry) Connections(userID string) []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]Socket, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Owner(connID string) (model.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	if !ok {
		return model.Identity{}, false
	}
	return e.identity, true
}

func (r *Registry) Socket(connID string) (Socket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return e.sock, true
}

func (r *Registry) LastActive(connID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActive, true
}

// ActivitySnapshot copies conn_id -> last activity.
func (r *Registry) ActivitySnapshot() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Time, len(r.byConn))
	for id, e := range r.byConn {
		out[id] = e.lastActive
	}
	return out
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// All lists every live socket (shutdown / statistics).
func (r *Registry) All() []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Socket, 0, len(r.byConn))
	for _, e := range r.byConn {
		out = append(out, e.sock)
	}
	return out
}

func (r *Registry) Count() (conns, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn), len(r.byUser)
}

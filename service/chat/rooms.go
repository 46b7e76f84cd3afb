package chat

import (
	"sync"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

const (
	userRoomPrefix  = "user:"
	groupRoomPrefix = "group:"
)

func PersonalRoom(userID string) string { return userRoomPrefix + userID }
func GroupRoom(groupID string) string   { return groupRoomPrefix + groupID }

// transportRef 传输层句柄；启动期间可能尚未 Attach
type transportRef struct {
	mu sync.RWMutex
	b  Broadcaster
}

func (t *transportRef) Load() Broadcaster {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.b
}

func (t *transportRef) Store(b Broadcaster) {
	t.mu.Lock()
	t.b = b
	t.mu.Unlock()
}

// RoomManager 连接与房间的加入/离开
type RoomManager struct {
	reg       *Registry
	transport *transportRef
}

func NewRoomManager(reg *Registry, transport *transportRef) *RoomManager {
	return &RoomManager{reg: reg, transport: transport}
}

func (m *RoomManager) join(sock Socket, room string) error {
	b := m.transport.Load()
	if b == nil {
		return errs.ErrTransportNotReady.WrapMsg("join", "room", room)
	}
	return b.Join(sock, room)
}

func (m *RoomManager) JoinPersonalRoom(sock Socket, userID string) error {
	return m.join(sock, PersonalRoom(userID))
}

// JoinGroupRooms joins every group room; a failing room is logged and skipped.
func (m *RoomManager) JoinGroupRooms(sock Socket, groupIDs []string) int {
	n := 0
	for _, g := range groupIDs {
		if g == "" {
			continue
		}
		if err := m.join(sock, GroupRoom(g)); err != nil {
			logger.Warn("[Rooms] join group room failed", zap.String("conn", sock.ID()), zap.String("group", g), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// JoinRoom puts every live connection of userID into room and returns them.
func (m *RoomManager) JoinRoom(userID, room string) []Socket {
	socks := m.reg.Connections(userID)
	for _, s := range socks {
		if err := m.join(s, room); err != nil {
			logger.Warn("[Rooms] join failed", zap.String("user", userID), zap.String("room", room), zap.Error(err))
		}
	}
	return socks
}

// LeaveRoom takes every live connection of userID out of room and returns them.
func (m *RoomManager) LeaveRoom(userID, room string) []Socket {
	socks := m.reg.Connections(userID)
	b := m.transport.Load()
	if b == nil {
		logger.Warn("[Rooms] transport not ready, leave skipped", zap.String("user", userID), zap.String("room", room))
		return socks
	}
	for _, s := range socks {
		b.Leave(s.ID(), room)
	}
	return socks
}

// DissolveRoom forces every socket out of room regardless of registry state.
func (m *RoomManager) DissolveRoom(room string) error {
	b := m.transport.Load()
	if b == nil {
		return errs.ErrTransportNotReady.WrapMsg("dissolve", "room", room)
	}
	return b.SocketsLeave(room)
}

// LeaveAll drops connID from every room it joined.
func (m *RoomManager) LeaveAll(connID string) {
	if b := m.transport.Load(); b != nil {
		b.LeaveAll(connID)
	}
}

package chat

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/service/metrics"
	"PPGateway/tools/errs"
	"PPGateway/tools/security"

	"go.uber.org/zap"
)

type ServerConf struct {
	NodeID  string
	Monitor MonitorConf
	WS      WSConf
	Auth    security.Options
	Clock   Clock
}

// Server 网关本体：连接生命周期 + 房间 + 下发 + 存活检测
type Server struct {
	conf ServerConf

	reg       *Registry
	hub       *Hub
	transport *transportRef
	rooms     *RoomManager
	fanout    *Fanout
	monitor   *Monitor
	disp      *Dispatcher

	lookup   MessageLookup
	presence PresenceMirror

	// 同一用户的上下线广播与镜像写入串行执行，按用户分片加锁
	statusMu  [statusShards]sync.Mutex
	announced sync.Map // userID -> struct{}，最近一次广播为 online

	closing atomic.Bool
}

const statusShards = 64

type Option func(*Server)

// WithPresence mirrors online/offline transitions to p.
func WithPresence(p PresenceMirror) Option {
	return func(s *Server) { s.presence = p }
}

func NewServer(conf ServerConf, lookup MessageLookup, opts ...Option) *Server {
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if conf.Monitor.Clock == nil {
		conf.Monitor.Clock = conf.Clock
	}
	conf.WS.norm()

	s := &Server{
		conf:      conf,
		reg:       NewRegistry(conf.Clock),
		hub:       NewHub(),
		transport: &transportRef{},
		disp:      NewDispatcher(),
		lookup:    lookup,
	}
	s.rooms = NewRoomManager(s.reg, s.transport)
	s.fanout = NewFanout(s.reg, s.transport, conf.Clock)
	s.monitor = NewMonitor(conf.Monitor, s.reg.ActivitySnapshot, s.forceDisconnect)
	for _, o := range opts {
		o(s)
	}
	if s.presence != nil {
		s.monitor.OnSweep(s.refreshPresence)
	}
	return s
}

func (s *Server) NodeID() string           { return s.conf.NodeID }
func (s *Server) Registry() *Registry      { return s.reg }
func (s *Server) Hub() *Hub                { return s.hub }
func (s *Server) Rooms() *RoomManager      { return s.rooms }
func (s *Server) Fanout() *Fanout          { return s.fanout }
func (s *Server) Monitor() *Monitor        { return s.monitor }
func (s *Server) Disp() *Dispatcher        { return s.disp }
func (s *Server) Lookup() MessageLookup    { return s.lookup }
func (s *Server) Presence() PresenceMirror { return s.presence }
func (s *Server) Now() time.Time           { return s.conf.Clock() }

// Attach installs the room transport. Until then room emissions are dropped
// (or delivered per connection where the fan-out allows it).
func (s *Server) Attach(b Broadcaster) {
	s.transport.Store(b)
}

// Start attaches the built-in hub when nothing else is attached and starts
// the liveness monitor.
func (s *Server) Start() {
	if s.transport.Load() == nil {
		s.Attach(s.hub)
	}
	s.monitor.Start()
}

// ConnectionEstablishedPayload 连接成功回执
type ConnectionEstablishedPayload struct {
	UserID    string    `json:"userId"`
	SocketID  string    `json:"socketId"`
	Synthetic bool      `json:"synthetic"`
	Timestamp time.Time `json:"timestamp"`
}

type noticePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleConnect registers sock for id, joins its personal and group rooms,
// confirms to the client and announces the user online on its first connection.
func (s *Server) HandleConnect(ctx context.Context, id model.Identity, sock Socket) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Server] connect panic", zap.String("conn", sock.ID()), zap.Error(errs.ErrPanic(r)))
			_ = Emit(sock, EventConnectionError, noticePayload{
				Message:   "Error establishing connection, please reconnect",
				Timestamp: s.Now(),
			})
		}
	}()

	first := s.reg.Add(id, sock)
	s.updateGauges()
	logger.Info("[Server] connected", zap.String("user", id.ID), zap.String("conn", sock.ID()),
		zap.Bool("synthetic", id.Synthetic), zap.Bool("first", first))

	if err := s.rooms.JoinPersonalRoom(sock, id.ID); err != nil {
		logger.Error("[Server] join personal room failed", zap.String("user", id.ID), zap.Error(err))
	}
	if !id.Synthetic {
		s.rooms.JoinGroupRooms(sock, s.userGroups(ctx, id.ID))
	}

	if err := Emit(sock, EventConnectionEstablished, ConnectionEstablishedPayload{
		UserID:    id.ID,
		SocketID:  sock.ID(),
		Synthetic: id.Synthetic,
		Timestamp: s.Now(),
	}); err != nil {
		logger.Warn("[Server] connectionEstablished not delivered", zap.String("conn", sock.ID()), zap.Error(err))
	}

	if first {
		s.syncStatus(ctx, id.ID)
	}
}

func (s *Server) statusLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.statusMu[h.Sum32()%statusShards]
}

// syncStatus announces userID's current registry state if it differs from the
// last announcement. Connect and disconnect of the same user may overlap, so
// the state is read again under the user's lock instead of trusting the
// caller's first/last flag.
func (s *Server) syncStatus(ctx context.Context, userID string) {
	mu := s.statusLock(userID)
	mu.Lock()
	defer mu.Unlock()

	online := s.reg.IsOnline(userID)
	_, was := s.announced.Load(userID)
	if online == was {
		return
	}

	if online {
		s.announced.Store(userID, struct{}{})
		s.fanout.BroadcastUserStatus(userID, StatusOnline)
		if s.presence != nil {
			if err := s.presence.SetOnline(ctx, userID); err != nil {
				logger.Warn("[Server] presence online failed", zap.String("user", userID), zap.Error(err))
			}
		}
		return
	}

	s.announced.Delete(userID)
	if !s.closing.Load() {
		s.fanout.BroadcastUserStatus(userID, StatusOffline)
	}
	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.presence.SetOffline(ctx, userID); err != nil {
			logger.Warn("[Server] presence offline failed", zap.String("user", userID), zap.Error(err))
		}
	}
}

// userGroups never fails: lookup errors degrade to "no groups".
func (s *Server) userGroups(ctx context.Context, userID string) []string {
	if s.lookup == nil {
		return nil
	}
	start := time.Now()
	groups, err := s.lookup.GetUserGroups(ctx, userID)
	metrics.LookupLatency.WithLabelValues("user_groups").Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("[Server] get user groups failed, continuing without groups", zap.String("user", userID), zap.Error(err))
		return nil
	}
	return groups
}

// HandleDisconnect removes sock; safe to call more than once.
func (s *Server) HandleDisconnect(sock Socket) {
	connID := sock.ID()
	id, ok := s.reg.Owner(connID)
	if !ok {
		return
	}
	removed, last := s.reg.Remove(id.ID, connID)
	if !removed {
		return
	}
	s.rooms.LeaveAll(connID)
	s.updateGauges()
	logger.Info("[Server] disconnected", zap.String("user", id.ID), zap.String("conn", connID), zap.Bool("last", last))

	if last {
		s.syncStatus(context.Background(), id.ID)
	}
}

// forceDisconnect warns the connection (best effort), closes it and runs the
// regular disconnect cleanup.
func (s *Server) forceDisconnect(connID string) {
	sock, ok := s.reg.Socket(connID)
	if !ok {
		return
	}
	id, _ := s.reg.Owner(connID)
	logger.Warn("[Server] connection inactive for too long, disconnecting", zap.String("conn", connID), zap.String("user", id.ID))

	_ = Emit(sock, EventConnectionWarning, noticePayload{
		Message:   "Connection inactive, will be disconnected soon",
		Timestamp: s.Now(),
	})
	if err := sock.Close(); err != nil {
		logger.Warn("[Server] close failed", zap.String("conn", connID), zap.Error(err))
	}
	metrics.ForcedDisconnects.Inc()
	s.HandleDisconnect(sock)
}

// HandleFrame refreshes activity, decodes one client frame and dispatches it.
// Any inbound frame counts as activity, even one that fails to decode.
func (s *Server) HandleFrame(sock Socket, raw []byte) {
	id, ok := s.reg.Owner(sock.ID())
	if !ok {
		logger.Warn("[Server] frame from unregistered connection", zap.String("conn", sock.ID()))
		return
	}
	s.reg.Touch(sock.ID())

	f, err := ParseFrameJSON(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Warn("[Server] bad frame", zap.String("conn", sock.ID()), zap.ByteString("sample", sample), zap.Error(err))
		return
	}

	res, err := s.disp.Dispatch(&ChatContext{S: s, Identity: id}, sock, f)
	metrics.InboundEvents.WithLabelValues(f.Event, metrics.Outcome(err)).Inc()
	if err != nil {
		logger.Warn("[Server] handler error", zap.String("conn", sock.ID()), zap.String("event", f.Event), zap.Error(err))
		res = ErrorAck{Status: "error", Message: err.Error(), Timestamp: s.Now().UnixMilli()}
	}
	if f.ID == nil && res == nil {
		return
	}
	frame, err := EncodeAck(f.Event, f.ID, res)
	if err != nil {
		logger.Error("[Server] encode ack failed", zap.String("event", f.Event), zap.Error(err))
		return
	}
	if err := sock.Send(frame); err != nil {
		logger.Warn("[Server] ack not delivered", zap.String("conn", sock.ID()), zap.Error(err))
	}
}

type ErrorAck struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type UserStatusEntry struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// UserStatus reports each identity as online when it has a local connection
// or is mirrored online by another node.
func (s *Server) UserStatus(ctx context.Context, userIDs []string) map[string]UserStatusEntry {
	out := make(map[string]UserStatusEntry, len(userIDs))
	var remote []string
	for _, u := range userIDs {
		if s.reg.IsOnline(u) {
			out[u] = UserStatusEntry{UserID: u, Status: StatusOnline}
			continue
		}
		remote = append(remote, u)
	}
	var mirrored map[string]bool
	if s.presence != nil && len(remote) > 0 {
		m, err := s.presence.Online(ctx, remote)
		if err != nil {
			logger.Warn("[Server] presence lookup failed, reporting local state only", zap.Error(err))
		}
		mirrored = m
	}
	now := s.Now().UnixMilli()
	for _, u := range userIDs {
		e, ok := out[u]
		if !ok {
			e = UserStatusEntry{UserID: u, Status: StatusOffline}
			if mirrored[u] {
				e.Status = StatusOnline
			}
		}
		e.Timestamp = now
		out[u] = e
	}
	return out
}

func (s *Server) refreshPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.presence.Refresh(ctx, s.reg.OnlineUsers()); err != nil {
		logger.Warn("[Server] presence refresh failed", zap.Error(err))
	}
}

func (s *Server) updateGauges() {
	conns, users := s.reg.Count()
	metrics.Connections.Set(float64(conns))
	metrics.OnlineUsers.Set(float64(users))
}

// Shutdown stops the monitor, closes every connection and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.monitor.Stop()
	for _, sock := range s.reg.All() {
		_ = sock.Close()
		s.HandleDisconnect(sock)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	s.hub.Close()
	logger.Info("[Server] shutdown complete", zap.String("node", s.conf.NodeID))
	return nil
}

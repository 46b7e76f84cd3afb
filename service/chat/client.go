package chat

import (
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSConf struct {
	PingInterval  time.Duration // 传输层 ping，与应用层 heartbeat 无关
	PingTimeout   time.Duration
	WriteWait     time.Duration
	SendQueue     int   // 每连接发送队列长度
	MaxFrameBytes int64 // 单帧上限
}

func (c *WSConf) norm() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 100 << 20
	}
}

// wsSocket 一条 WebSocket 连接；写操作只由 writePump 协程执行。
type wsSocket struct {
	id   string
	conn *websocket.Conn
	conf WSConf

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	pumpDone  chan struct{}
}

func newWSSocket(id string, conn *websocket.Conn, conf WSConf) *wsSocket {
	return &wsSocket{
		id:       id,
		conn:     conn,
		conf:     conf,
		send:     make(chan []byte, conf.SendQueue),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

func (c *wsSocket) ID() string { return c.id }

// Send queues frame without blocking.
func (c *wsSocket) Send(frame []byte) error {
	select {
	case <-c.done:
		return errs.ErrSocketClosed.WrapMsg("send", "conn", c.id)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errs.ErrSocketClosed.WrapMsg("send", "conn", c.id)
	default:
		return errs.ErrSendQueueFull.WrapMsg("send", "conn", c.id)
	}
}

// Close asks the write pump to flush queued frames and close the connection.
func (c *wsSocket) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsSocket) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				logger.Info("[WS] write failed", zap.String("conn", c.id), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Info("[WS] ping failed", zap.String("conn", c.id), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.conf.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued, e.g. a warning sent right before Close.
func (c *wsSocket) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsSocket) write(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

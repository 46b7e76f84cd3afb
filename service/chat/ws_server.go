package chat

import (
	"net"
	"net/http"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS upgrades the request and runs the connection until it closes.
func (s *Server) HandleWS(c *gin.Context) {
	if s.closing.Load() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	id := ResolveIdentity(c.Request, s.conf.Auth)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Info("[WS] upgrade websocket error", zap.Error(err))
		return
	}

	conf := s.conf.WS
	ws.SetReadLimit(conf.MaxFrameBytes)
	readWait := conf.PingInterval + conf.PingTimeout
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	sock := newWSSocket(ids.GenerateString(), ws, conf)
	go sock.writePump()

	s.HandleConnect(c.Request.Context(), id, sock)

	defer func() {
		s.HandleDisconnect(sock)
		sock.Close()
		<-sock.pumpDone
	}()

	// 读循环：只读不写，出错即退出
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			logReadError(sock.id, id.ID, rerr)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		s.HandleFrame(sock, data)
	}
}

func logReadError(connID, userID string, err error) {
	fields := []zap.Field{zap.String("conn", connID), zap.String("user", userID), zap.Error(err)}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Info("[WS] peer closed", fields...)
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		logger.Info("[WS] read timeout", fields...)
	} else {
		logger.Info("[WS] read err", fields...)
	}
}

// Routes mounts the websocket endpoint on r.
func (s *Server) Routes(r gin.IRouter, path string) {
	r.GET(path, s.HandleWS)
}

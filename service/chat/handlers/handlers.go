package handlers

import "PPGateway/service/chat"

// RegisterAll 注册全部上行事件处理器
func RegisterAll(s *chat.Server) {
	d := s.Disp()
	d.Register(NewHeartbeatHandler())
	d.Register(NewTypingHandler())
	d.Register(NewStopTypingHandler())
	d.Register(NewUserStatusHandler())
}

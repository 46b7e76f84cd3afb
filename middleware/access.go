package middleware

import (
	"time"

	"PPGateway/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog 请求结束后记录一行；websocket 连接在断开时才会记录
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("[HTTP] access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

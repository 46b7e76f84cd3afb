package middleware

import (
	"net/http"
	"strings"

	"PPGateway/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Origin 只拦截 websocket 升级请求；allowed 为空时全部放行，"*" 匹配任意来源
func Origin(allowed []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	_, wildcard := set["*"]

	return func(c *gin.Context) {
		if len(set) == 0 || wildcard || !isUpgrade(c.Request) {
			return
		}
		origin := strings.TrimRight(strings.ToLower(c.GetHeader("Origin")), "/")
		if origin == "" {
			return // 非浏览器客户端
		}
		if _, ok := set[origin]; !ok {
			logger.Warn("[HTTP] origin rejected", zap.String("origin", origin), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}

func isUpgrade(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

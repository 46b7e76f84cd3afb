package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager 可以在运行期注册中间件，挂载一次 Use() 即可
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add 注册一个中间件
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
}

// Clear 清空全部中间件
func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Use 返回总控 handler，按注册顺序执行，任一 Abort 即停止
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := append([]gin.HandlerFunc{}, m.mids...) // 快照
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}

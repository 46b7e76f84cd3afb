package natsx

import (
	"context"
	"sync"
	"time"
)

// ----- 抽象存储 -----
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type MemIdem struct {
	mu   sync.Mutex
	m    map[string]time.Time // key -> expire
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	mi := &MemIdem{m: make(map[string]time.Time), ttl: defaultTTL, now: time.Now, stop: make(chan struct{})}
	// 清理协程
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-mi.stop:
				return
			case <-t.C:
				mi.purge()
			}
		}
	}()
	return mi
}

func (mi *MemIdem) purge() {
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	for k, exp := range mi.m {
		if !exp.After(now) {
			delete(mi.m, k)
		}
	}
}

func (mi *MemIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil // 已见过
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

func (mi *MemIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

// ----- 从消息头提取 msgID -----
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{HeaderMsgID, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware 丢弃 ttl 内重复投递的同一 msgID；没有 msgID 的消息原样放行
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				return next(ctx, msg)
			}
			if seen, _ := store.SeenOnce(msg.Subject+"|"+id, ttl); seen {
				return nil
			}
			return next(ctx, msg)
		}
	}
}

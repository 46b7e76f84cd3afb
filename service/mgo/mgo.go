package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPGateway/data/database/mgo/mongoutil"
	"PPGateway/logger"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// MongoManager 后台维持一个 Mongo 连接：首次连上前不阻塞调用方，掉线后自动重连
type MongoManager struct {
	cfg *mongoutil.Config

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once

	lastErr atomic.Value // error
	done    chan struct{}
}

func NewMongoManager(cfg *mongoutil.Config) *MongoManager {
	return &MongoManager{
		cfg:     cfg,
		readyCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// StartAsync 一直运行到 ctx.Done()
func (m *MongoManager) StartAsync(ctx context.Context) {
	safe.Go("mongo-manager", func() {
		defer close(m.done)
		for {
			if !m.connect(ctx) {
				return
			}
			if !m.watch(ctx) {
				return
			}
		}
	})
}

// connect 带退避重试直到成功；ctx 结束返回 false
func (m *MongoManager) connect(ctx context.Context) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("[Mongo] connected", zap.String("db", m.cfg.Database))
			return true
		}
		m.lastErr.Store(err)
		logger.Warn("[Mongo] connect failed", zap.Int("attempt", attempt), zap.Error(err))

		if !sleepCtx(ctx, backoff(attempt)) {
			return false
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// watch 周期 ping，连续失败 failThresh 次断开并返回 true 以触发重连
func (m *MongoManager) watch(ctx context.Context) bool {
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			if err := c.Ping(ctx); err != nil {
				fail++
				m.lastErr.Store(err)
				if fail >= failThresh {
					logger.Warn("[Mongo] health check failed, reconnecting", zap.Error(err))
					m.drop()
					return true
				}
				continue
			}
			fail = 0
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	c := m.client
	m.client = nil
	m.mu.Unlock()
	if c != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func backoff(attempt int) time.Duration {
	d := baseBackoff << attempt
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d / 5))) // 0~20%
	return d - jitter/2
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Ready 首次连接成功时会 close；可 select 等待
func (m *MongoManager) Ready() <-chan struct{} {
	return m.readyCh
}

// Err 最近一次错误
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// GetDB 未就绪时返回 ErrStoreNotReady
func (m *MongoManager) GetDB() (*mongo.Database, error) {
	if db, ok := m.TryGetDB(); ok {
		return db, nil
	}
	if last := m.Err(); last != nil {
		return nil, errs.ErrStoreNotReady.WrapMsg("mongo not ready", "lastErr", last.Error())
	}
	return nil, errs.ErrStoreNotReady.WrapMsg("mongo not ready")
}

func (m *MongoManager) WaitReady(ctx context.Context) error {
	if _, ok := m.TryGetDB(); ok {
		return nil
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待后台协程退出（StartAsync 的 ctx 结束后）
func (m *MongoManager) Wait() {
	<-m.done
}

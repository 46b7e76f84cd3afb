package redis

import (
	"context"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type RedisManager struct {
	client *redis.Client
}

// NewRedisManager 建连并 Ping，失败时关闭连接
func NewRedisManager(ctx context.Context, c Config) (*RedisManager, error) {
	if c.Addr == "" {
		return nil, errs.ErrArgs.WrapMsg("redis addr is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping failed", "addr", c.Addr)
	}
	logger.Info("[Redis] connected", zap.String("addr", c.Addr), zap.Int("db", c.DB))
	return &RedisManager{client: rdb}, nil
}

func (m *RedisManager) Client() *redis.Client {
	return m.client
}

// Close 关闭连接
func (m *RedisManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

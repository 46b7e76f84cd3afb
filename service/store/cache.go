package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/service/chat"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultGroupCacheTTL = 60 * time.Second
	groupCacheKeyPrefix  = "im:gw:groups:"

	// 失效后留一个短期墓碑：墓碑存在期间只读库不回填，
	// 防止失效前发起的查询把旧结果写回去
	groupTombstone    = "-"
	groupTombstoneTTL = 5 * time.Second
)

// CachedLookup 给 GetUserGroups 加一层 Redis 缓存，FindMessageByID 直接透传。
// Redis 出错时退回底层查询，不影响连接流程。
// 回填用 SET NX，不会覆盖墓碑或并发写入的新值。
type CachedLookup struct {
	next chat.MessageLookup
	rdb  redis.UniversalClient
	ttl  time.Duration
}

var _ chat.GroupCacheInvalidator = (*CachedLookup)(nil)

func NewCachedLookup(next chat.MessageLookup, rdb redis.UniversalClient, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = DefaultGroupCacheTTL
	}
	return &CachedLookup{next: next, rdb: rdb, ttl: ttl}
}

func groupCacheKey(userID string) string { return groupCacheKeyPrefix + userID }

func (c *CachedLookup) GetUserGroups(ctx context.Context, userID string) ([]string, error) {
	key := groupCacheKey(userID)
	fill := true
	corrupt := false
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil && string(raw) == groupTombstone:
		fill = false
	case err == nil:
		var groups []string
		if jerr := json.Unmarshal(raw, &groups); jerr == nil {
			return groups, nil
		}
		logger.Warn("[Store] corrupt group cache entry", zap.String("user", userID))
		corrupt = true
	case !errors.Is(err, redis.Nil):
		logger.Warn("[Store] group cache read failed", zap.String("user", userID), zap.Error(err))
	}

	groups, err := c.next.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []string{}
	}
	if fill {
		c.fill(ctx, key, groups, corrupt)
	}
	return groups, nil
}

func (c *CachedLookup) fill(ctx context.Context, key string, groups []string, overwrite bool) {
	b, err := json.Marshal(groups)
	if err != nil {
		return
	}
	if overwrite {
		err = c.rdb.Set(ctx, key, b, c.ttl).Err()
	} else {
		err = c.rdb.SetNX(ctx, key, b, c.ttl).Err()
	}
	if err != nil {
		logger.Warn("[Store] group cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedLookup) FindMessageByID(ctx context.Context, messageID string) (*model.MessageRecord, error) {
	return c.next.FindMessageByID(ctx, messageID)
}

func (c *CachedLookup) InvalidateUserGroups(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	for _, u := range userIDs {
		pipe.Set(ctx, groupCacheKey(u), groupTombstone, groupTombstoneTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("[Store] group cache invalidate failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}

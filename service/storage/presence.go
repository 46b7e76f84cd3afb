package storage

import (
	"context"
	"strconv"
	"time"

	"PPGateway/service/chat"
	"PPGateway/tools/errs"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPresencePrefix = "im:presence:"
	DefaultPresenceTTL    = 6 * time.Minute
)

type PresenceConfig struct {
	KeyPrefix string
	NodeID    string // hash field，表示用户连在哪个网关节点
	TTL       time.Duration
}

// Presence 跨节点在线镜像：key = <prefix><user>，hash field = 节点ID，value = 该节点记录的过期时间(ms)。
// 同一用户可同时连在多个节点，任一节点记录未过期即视为在线。
type Presence struct {
	rdb    redis.UniversalClient
	prefix string
	nodeID string
	ttl    time.Duration
	now    func() time.Time
}

var _ chat.PresenceMirror = (*Presence)(nil)

func NewPresence(rdb redis.UniversalClient, c PresenceConfig) *Presence {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultPresencePrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultPresenceTTL
	}
	return &Presence{rdb: rdb, prefix: c.KeyPrefix, nodeID: c.NodeID, ttl: c.TTL, now: time.Now}
}

func (p *Presence) key(user string) string { return p.prefix + user }

// mark 写本节点记录；整个 key 的 TTL 跟着续期，节点宕机后残留的 field 靠 value 里的过期时间过滤
func (p *Presence) mark(ctx context.Context, pipe redis.Pipeliner, userID string) {
	expireAt := p.now().Add(p.ttl).UnixMilli()
	pipe.HSet(ctx, p.key(userID), p.nodeID, expireAt)
	pipe.PExpire(ctx, p.key(userID), p.ttl)
}

// SetOnline records this node as holding userID and renews the TTL.
func (p *Presence) SetOnline(ctx context.Context, userID string) error {
	pipe := p.rdb.TxPipeline()
	p.mark(ctx, pipe, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "presence set", "user", userID)
	}
	return nil
}

// SetOffline drops only this node's record; other nodes keep the user online.
func (p *Presence) SetOffline(ctx context.Context, userID string) error {
	if err := p.rdb.HDel(ctx, p.key(userID), p.nodeID).Err(); err != nil {
		return errs.WrapMsg(err, "presence del", "user", userID)
	}
	return nil
}

// Refresh 重写本节点在线用户的记录；过期被清掉的也会补回
func (p *Presence) Refresh(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, u := range userIDs {
		p.mark(ctx, pipe, u)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "presence refresh", "count", len(userIDs))
	}
	return nil
}

func (p *Presence) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	pipe := p.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, u := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, p.key(u))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errs.WrapMsg(err, "presence hgetall", "count", len(userIDs))
	}
	now := p.now().UnixMilli()
	for i, u := range userIDs {
		out[u] = false
		for _, v := range cmds[i].Val() {
			if exp, err := strconv.ParseInt(v, 10, 64); err == nil && exp > now {
				out[u] = true
				break
			}
		}
	}
	return out, nil
}

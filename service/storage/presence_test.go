package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresence(t *testing.T, node string) (*Presence, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresence(rdb, PresenceConfig{NodeID: node, TTL: time.Minute}), mr, rdb
}

func isOnline(t *testing.T, p *Presence, user string) bool {
	t.Helper()
	got, err := p.Online(context.Background(), []string{user})
	require.NoError(t, err)
	return got[user]
}

func nodesOf(t *testing.T, mr *miniredis.Miniredis, user string) []string {
	t.Helper()
	nodes, err := mr.HKeys("im:presence:" + user)
	require.NoError(t, err)
	return nodes
}

func TestPresenceOnlineOffline(t *testing.T) {
	p, mr, _ := newPresence(t, "gw1")
	ctx := context.Background()

	require.NoError(t, p.SetOnline(ctx, "u1"))
	assert.True(t, mr.Exists("im:presence:u1"))
	assert.Equal(t, []string{"gw1"}, nodesOf(t, mr, "u1"))
	assert.Equal(t, time.Minute, mr.TTL("im:presence:u1"))
	assert.True(t, isOnline(t, p, "u1"))

	require.NoError(t, p.SetOffline(ctx, "u1"))
	assert.False(t, mr.Exists("im:presence:u1"))
	assert.False(t, isOnline(t, p, "u1"))
}

func TestSetOfflineKeepsOtherNode(t *testing.T) {
	a, mr, rdb := newPresence(t, "gw1")
	b := NewPresence(rdb, PresenceConfig{NodeID: "gw2", TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, a.SetOnline(ctx, "u1"))
	require.NoError(t, b.SetOnline(ctx, "u1"))
	require.NoError(t, b.SetOffline(ctx, "u1"))
	assert.Equal(t, []string{"gw1"}, nodesOf(t, mr, "u1"))
	assert.True(t, isOnline(t, a, "u1"))
	assert.True(t, isOnline(t, b, "u1"))

	require.NoError(t, a.SetOffline(ctx, "u1"))
	assert.False(t, isOnline(t, b, "u1"))
	require.NoError(t, a.SetOffline(ctx, "never-online"))
}

func TestStaleNodeRecordIgnored(t *testing.T) {
	a, mr, rdb := newPresence(t, "gw1")
	b := NewPresence(rdb, PresenceConfig{NodeID: "gw2", TTL: time.Minute})
	ctx := context.Background()

	// gw2 crashed a while ago; gw1 keeps the key alive but gw2's entry has expired.
	mr.HSet("im:presence:u1", "gw2", strconv.FormatInt(time.Now().Add(-time.Second).UnixMilli(), 10))
	assert.False(t, isOnline(t, a, "u1"))

	require.NoError(t, a.SetOnline(ctx, "u1"))
	assert.True(t, isOnline(t, b, "u1"))
	require.NoError(t, a.SetOffline(ctx, "u1"))
	assert.False(t, isOnline(t, b, "u1"))

	mr.HSet("im:presence:u2", "gw2", "garbage")
	assert.False(t, isOnline(t, a, "u2"))
}

func TestPresenceOnlineBatch(t *testing.T) {
	p, _, _ := newPresence(t, "gw1")
	ctx := context.Background()
	require.NoError(t, p.SetOnline(ctx, "u1"))
	require.NoError(t, p.SetOnline(ctx, "u3"))

	got, err := p.Online(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u1": true, "u2": false, "u3": true}, got)

	got, err = p.Online(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPresenceRefreshRestoresExpired(t *testing.T) {
	p, mr, _ := newPresence(t, "gw1")
	ctx := context.Background()
	require.NoError(t, p.SetOnline(ctx, "u1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("im:presence:u1"))

	require.NoError(t, p.Refresh(ctx, []string{"u1", "u2"}))
	assert.Equal(t, []string{"gw1"}, nodesOf(t, mr, "u1"))
	assert.Equal(t, time.Minute, mr.TTL("im:presence:u2"))
	assert.True(t, isOnline(t, p, "u2"))
	assert.NoError(t, p.Refresh(ctx, nil))
}

func TestPresenceDefaults(t *testing.T) {
	p := NewPresence(nil, PresenceConfig{NodeID: "gw1"})
	assert.Equal(t, DefaultPresenceTTL, p.ttl)
	assert.Equal(t, "im:presence:x", p.key("x"))
}

func TestPresenceRedisDown(t *testing.T) {
	p, mr, _ := newPresence(t, "gw1")
	mr.Close()
	ctx := context.Background()
	assert.Error(t, p.SetOnline(ctx, "u1"))
	assert.Error(t, p.SetOffline(ctx, "u1"))
	_, err := p.Online(ctx, []string{"u1"})
	assert.Error(t, err)
}

package chat

import (
	"testing"
	"time"

	"PPGateway/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultipleConnections(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk.Now)
	u1 := model.Identity{ID: "u1"}

	assert.True(t, r.Add(u1, newFakeSocket("c1")))
	assert.False(t, r.Add(u1, newFakeSocket("c2")))
	assert.False(t, r.Add(u1, newFakeSocket("c3")))
	require.Len(t, r.Connections("u1"), 3)

	removed, last := r.Remove("u1", "c2")
	assert.True(t, removed)
	assert.False(t, last)
	assert.Len(t, r.Connections("u1"), 2)
	assert.True(t, r.IsOnline("u1"))

	_, last = r.Remove("u1", "c1")
	assert.False(t, last)
	_, last = r.Remove("u1", "c3")
	assert.True(t, last)
	assert.False(t, r.IsOnline("u1"))
	assert.Empty(t, r.Connections("u1"))

	conns, users := r.Count()
	assert.Equal(t, 0, conns)
	assert.Equal(t, 0, users)
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(model.Identity{ID: "u1"}, newFakeSocket("c1"))

	removed, last := r.Remove("u1", "nope")
	assert.False(t, removed)
	assert.False(t, last)

	removed, _ = r.Remove("u2", "c1")
	assert.False(t, removed)
	assert.True(t, r.IsOnline("u1"))
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	u1 := model.Identity{ID: "u1"}
	sock := newFakeSocket("c1")
	assert.True(t, r.Add(u1, sock))
	assert.False(t, r.Add(u1, sock))

	conns, users := r.Count()
	assert.Equal(t, 1, conns)
	assert.Equal(t, 1, users)
}

func TestRegistryConnectionBelongsToOneUser(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket("c1")
	r.Add(model.Identity{ID: "u1"}, sock)
	r.Add(model.Identity{ID: "u2"}, sock)

	assert.False(t, r.IsOnline("u1"))
	owner, ok := r.Owner("c1")
	require.True(t, ok)
	assert.Equal(t, "u2", owner.ID)
}

func TestRegistryTouchNeverMovesBackwards(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk.Now)
	r.Add(model.Identity{ID: "u1"}, newFakeSocket("c1"))
	start, _ := r.LastActive("c1")

	clk.Advance(time.Minute)
	assert.True(t, r.Touch("c1"))
	later, _ := r.LastActive("c1")
	assert.Equal(t, start.Add(time.Minute), later)

	clk.Advance(-10 * time.Minute)
	r.Touch("c1")
	got, _ := r.LastActive("c1")
	assert.Equal(t, later, got)

	assert.False(t, r.Touch("missing"))
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(model.Identity{ID: "u1"}, newFakeSocket("c1"))
	snap := r.ActivitySnapshot()
	delete(snap, "c1")
	_, ok := r.LastActive("c1")
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"u1"}, r.OnlineUsers())
}

package mgo

import (
	"context"
	"testing"
	"time"

	"PPGateway/data/database/mgo/mongoutil"
	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotReadyBeforeStart(t *testing.T) {
	m := NewMongoManager(&mongoutil.Config{Uri: "mongodb://127.0.0.1:1", Database: "im"})

	_, ok := m.TryGetDB()
	assert.False(t, ok)

	_, err := m.GetDB()
	require.Error(t, err)
	assert.True(t, errs.ErrStoreNotReady.Is(err))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitReady(ctx), context.DeadlineExceeded)
}

func TestStartAsyncStopsWithContext(t *testing.T) {
	m := NewMongoManager(&mongoutil.Config{Database: "im"}) // invalid: never connects
	ctx, cancel := context.WithCancel(context.Background())
	m.StartAsync(ctx)
	cancel()

	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
	_, ok := m.TryGetDB()
	assert.False(t, ok)
}

func TestBackoffBounded(t *testing.T) {
	for i := 0; i < 10; i++ {
		d := backoff(i)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, maxBackoff)
	}
}

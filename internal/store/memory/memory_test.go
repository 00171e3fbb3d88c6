package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/taskscheduler/engine"
)

func TestStoreGetSetRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()

	state, err := s.Get(ctx)
	require.NoError(t, err)
	state.Statuses["task-1"] = engine.StatusPending

	require.NoError(t, s.Set(ctx, state))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, got.Statuses["task-1"])
}

func TestStoreGetReturnsIndependentCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.Get(ctx)
	require.NoError(t, err)
	first.Statuses["task-1"] = engine.StatusRunning

	second, err := s.Get(ctx)
	require.NoError(t, err)
	_, ok := second.Statuses["task-1"]
	assert.False(t, ok, "mutating a fetched copy must not affect the store or other callers")
}

func TestLockExcludesConcurrentAcquire(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Acquire(cancelCtx)
	assert.Error(t, err, "Acquire must respect an already-cancelled context")

	release()

	release2, err := l.Acquire(ctx)
	require.NoError(t, err)
	release2()
}

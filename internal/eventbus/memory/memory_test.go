package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyAfterNotify(t *testing.T) {
	e := New().Create("finished:x")
	e.Notify()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestNotifyIsIdempotent(t *testing.T) {
	e := New().Create("finished:x")
	e.Notify()
	e.Notify()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestWaitReleasesOnCancel(t *testing.T) {
	e := New().Create("finished:x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not release on context cancellation")
	}
}

func TestEventsAreIndependentPerCreate(t *testing.T) {
	f := New()
	a := f.Create("finished:a")
	b := f.Create("finished:b")
	a.Notify()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Wait(ctx), "notifying one event must not fire another")
}

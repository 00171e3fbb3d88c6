// Package memory provides an in-process engine.EventFactory with
// level-triggered notify/wait semantics: one closed-channel event per
// topic rather than a full topic/subscriber fan-out bus.
package memory

import (
	"context"
	"sync"

	"github.com/kandev/taskscheduler/engine"
)

// Factory creates closed-channel-backed events. Each topic gets an
// independent Event instance; the engine's EventCache is what makes
// repeated Create calls for the same topic idempotent.
type Factory struct{}

// New returns a Factory.
func New() Factory { return Factory{} }

func (Factory) Create(_ string) engine.Event {
	return &event{ch: make(chan struct{})}
}

type event struct {
	once sync.Once
	ch   chan struct{}
}

// Notify is idempotent: only the first call closes the channel, every
// call after is a no-op (engine.Event's "idempotent permanent signal").
func (e *event) Notify() {
	e.once.Do(func() { close(e.ch) })
}

// Wait returns nil once Notify has been called (even if that happened
// before Wait was called), or ctx.Err() if ctx is cancelled first.
func (e *event) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package memory provides an in-process Store[*engine.State] and Lock,
// suitable for tests and single-process deployments that do not need
// persistence across restarts.
package memory

import (
	"context"
	"sync"

	"github.com/kandev/taskscheduler/engine"
)

// Store is an in-memory engine.Store[*engine.State]. Get returns the
// single stored State (initializing one on first use); Set replaces it
// wholesale. A single mutex guards both, matching the single in-process
// caller the engine's own Lock already assumes.
type Store struct {
	mu    sync.RWMutex
	state *engine.State
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: engine.NewState()}
}

func (s *Store) Get(_ context.Context) (*engine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *Store) Set(_ context.Context, value *engine.State) error {
	clone := value.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = clone
	return nil
}

// Lock is a single in-process exclusive lock (engine.Lock). It is
// re-entrancy-free: acquiring it twice from the same goroutine deadlocks,
// matching the spec's requirement.
type Lock struct {
	mu sync.Mutex
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	return &Lock{}
}

// Acquire blocks until the lock is free or ctx is cancelled, and returns a
// release func guaranteed safe to call exactly once.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return l.mu.Unlock, nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/taskscheduler/internal/common/logger"
)

// CleanRequest names the cleaning strategy to apply for an on-demand clean.
type CleanRequest struct {
	Strategy Specification
}

// CleanResult is the set of ids removed by a clean call.
type CleanResult struct {
	Removed Set
}

// Ticker yields a lazy sequence of tick signals for periodic reaping. The
// channel is closed when the source is exhausted; the Reaper treats that
// the same as context cancellation and stops.
type Ticker interface {
	Ticks(ctx context.Context) <-chan struct{}
}

// Reaper garbage-collects finished tasks with no live dependents, either
// on demand or on a periodic tick. The predicate it hands to
// Modifier.RemoveStale always runs outside the exclusive lock, so
// arbitrary strategy code cannot deadlock the engine.
type Reaper struct {
	modifier   *Modifier
	lock       Lock
	strategies CleaningStrategyFactory
	log        *logger.Logger

	mu             sync.Mutex
	periodicCancel context.CancelFunc
	wg             sync.WaitGroup
}

// NewReaper builds a Reaper over the given collaborators.
func NewReaper(modifier *Modifier, lock Lock, strategies CleaningStrategyFactory, log *logger.Logger) *Reaper {
	return &Reaper{modifier: modifier, lock: lock, strategies: strategies, log: log.WithFields(zap.String("component", "reaper"))}
}

// Clean builds the named cleaning strategy and removes every finished,
// dependent-free task it approves. An unknown strategy type fails before
// any state change.
func (r *Reaper) Clean(ctx context.Context, req CleanRequest) (CleanResult, error) {
	strategy, ok := r.strategies.Create(req.Strategy.Type)
	if !ok {
		return CleanResult{}, ErrInvalidCleaningStrategy(req.Strategy.Type)
	}

	predicate := func(ctx context.Context, task PublicView) (bool, error) {
		return strategy.Evaluate(ctx, task, req.Strategy.Parameters)
	}

	removed, err := r.modifier.RemoveStale(ctx, r.lock, predicate)
	if err != nil {
		return CleanResult{}, err
	}
	return CleanResult{Removed: removed}, nil
}

// StartPeriodic runs Clean(strategy) every time ticker produces a tick,
// until ctx is cancelled, the tick source closes, or StopPeriodic is
// called.
func (r *Reaper) StartPeriodic(ctx context.Context, strategy Specification, ticker Ticker) {
	loopCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.periodicCancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticks := ticker.Ticks(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				if _, err := r.Clean(loopCtx, CleanRequest{Strategy: strategy}); err != nil {
					r.log.Error("periodic clean failed", zap.Error(err))
				}
			}
		}
	}()
}

// StopPeriodic cancels the periodic task and waits for it to exit.
func (r *Reaper) StopPeriodic() {
	r.mu.Lock()
	cancel := r.periodicCancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

package engine

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kandev/taskscheduler/internal/common/logger"
)

// Engine is the facade wiring the scheduler's components together:
// Adder/Canceller/Readers/Reaper for clients, and a Dispatcher driving
// admitted tasks to completion in the background. Concrete plugin
// adapters are the caller's concern and are supplied at construction.
type Engine struct {
	store      Store[*State]
	lock       Lock
	queue      Queue[TaskID]
	events     *EventCache
	modifier   *Modifier
	resolver   *ResultResolver
	driver     *Driver
	dispatcher *Dispatcher
	adder      *Adder
	canceller  *Canceller
	reaper     *Reaper
	readers    *Readers
	log        *logger.Logger
}

// New assembles an Engine from its seven plugin collaborators
// plus a logger and an optional tracer (nil disables span emission).
func New(
	store Store[*State],
	lock Lock,
	queue Queue[TaskID],
	eventFactory EventFactory,
	operations OperationFactory,
	conditions ConditionFactory,
	cleaningStrategies CleaningStrategyFactory,
	log *logger.Logger,
	tracer trace.Tracer,
) *Engine {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithFields(zap.String("component", "engine"))

	events := NewEventCache(eventFactory)
	modifier := NewModifier(store)
	resolver := NewResultResolver(store, lock, events)
	driver := NewDriver(modifier, store, lock, events, resolver, operations, conditions, log, tracer)

	return &Engine{
		store:      store,
		lock:       lock,
		queue:      queue,
		events:     events,
		modifier:   modifier,
		resolver:   resolver,
		driver:     driver,
		dispatcher: NewDispatcher(queue, driver, log, tracer),
		adder:      NewAdder(modifier, lock, queue, operations, conditions),
		canceller:  NewCanceller(modifier, lock, events),
		reaper:     NewReaper(modifier, lock, cleaningStrategies, log),
		readers:    NewReaders(store, lock),
		log:        log,
	}
}

// Start begins consuming the queue and dispatching drivers.
func (e *Engine) Start(ctx context.Context) error {
	e.log.Info("starting")
	return e.dispatcher.Start(ctx)
}

// Stop cancels every outstanding driver and any periodic reaping task,
// blocking until both have fully unwound.
func (e *Engine) Stop() error {
	e.log.Info("stopping")
	e.reaper.StopPeriodic()
	return e.dispatcher.Stop()
}

// Add admits a new task.
func (e *Engine) Add(ctx context.Context, req AddRequest) (PendingTask, error) {
	return e.adder.Add(ctx, req)
}

// Cancel cancels a pending or running task.
func (e *Engine) Cancel(ctx context.Context, id TaskID) (CancelledTask, error) {
	return e.canceller.Cancel(ctx, id)
}

// Resolve blocks until id reaches a terminal status.
func (e *Engine) Resolve(ctx context.Context, id TaskID) (Resolution, error) {
	return e.resolver.Resolve(ctx, id)
}

// Clean performs an on-demand reap.
func (e *Engine) Clean(ctx context.Context, req CleanRequest) (CleanResult, error) {
	return e.reaper.Clean(ctx, req)
}

// StartPeriodicClean starts the optional periodic reaping mode.
func (e *Engine) StartPeriodicClean(ctx context.Context, strategy Specification, ticker Ticker) {
	e.reaper.StartPeriodic(ctx, strategy, ticker)
}

// Readers returns the engine's read-only view accessor.
func (e *Engine) Readers() *Readers {
	return e.readers
}

package engine

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/kandev/taskscheduler/internal/common/logger"
)

var (
	// ErrDispatcherAlreadyRunning is returned by Start if the dispatcher's
	// background loop is already active.
	ErrDispatcherAlreadyRunning = errors.New("dispatcher is already running")
	// ErrDispatcherNotRunning is returned by Stop if the loop is not active.
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")
)

// Dispatcher consumes the external queue and spawns one Driver per task
// id. On shutdown every outstanding driver is cancelled and awaited
// before Stop returns.
type Dispatcher struct {
	queue  Queue[TaskID]
	driver *Driver
	log    *logger.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher builds a Dispatcher over the given queue and driver. A
// nil tracer falls back to a no-op one.
func NewDispatcher(queue Queue[TaskID], driver *Driver, log *logger.Logger, tracer trace.Tracer) *Dispatcher {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("taskscheduler/engine")
	}
	return &Dispatcher{queue: queue, driver: driver, log: log.WithFields(zap.String("component", "dispatcher")), tracer: tracer}
}

// Start begins the dispatch loop in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrDispatcherAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(loopCtx)
	return nil
}

// Stop cancels every outstanding driver and blocks until the loop and all
// spawned drivers have exited.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherNotRunning
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		id, err := d.queue.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error("queue get failed", zap.Error(err))
			continue
		}

		_, span := d.tracer.Start(ctx, "dispatch", trace.WithAttributes(attribute.String("task.id", id.String())))
		span.End()

		d.wg.Add(1)
		go func(id TaskID) {
			defer d.wg.Done()
			d.driver.Run(ctx, id)
		}(id)
	}
}

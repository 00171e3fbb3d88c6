package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/taskscheduler/internal/common/logger"
)

// Driver is the per-task coordination activity. For each admitted id it
// races the run pipeline against a cancellation watcher as
// errgroup.WithContext siblings; whichever finishes first cancels the
// other.
type Driver struct {
	modifier   *Modifier
	store      Store[*State]
	lock       Lock
	events     *EventCache
	resolver   *ResultResolver
	operations OperationFactory
	conditions ConditionFactory
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewDriver builds a Driver over the given collaborators. A nil tracer
// falls back to a no-op one, so tracing is entirely optional.
func NewDriver(modifier *Modifier, store Store[*State], lock Lock, events *EventCache, resolver *ResultResolver, operations OperationFactory, conditions ConditionFactory, log *logger.Logger, tracer trace.Tracer) *Driver {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("taskscheduler/engine")
	}
	return &Driver{
		modifier: modifier, store: store, lock: lock, events: events,
		resolver: resolver, operations: operations, conditions: conditions, log: log,
		tracer: tracer,
	}
}

// Run drives id to completion: a pending task runs through condition,
// dependency resolution and operation, or is unwound by a concurrent
// cancellation. Run blocks until the pipeline exits: the task reached a
// terminal status, parentCtx was cancelled, the task was not pending when
// the driver read it, or a lock or store call failed.
func (d *Driver) Run(parentCtx context.Context, id TaskID) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return d.runTask(gctx, id)
	})
	g.Go(func() error {
		defer cancel()
		return d.watchCancellation(gctx, id)
	})
	_ = g.Wait()
}

func (d *Driver) watchCancellation(ctx context.Context, id TaskID) error {
	return d.events.Get(CancelledTopic(id)).Wait(ctx)
}

// runTask sequences condition instantiation, dependency resolution,
// the condition wait and the operation, committing a terminal state at
// the end of whichever path it takes.
func (d *Driver) runTask(ctx context.Context, id TaskID) error {
	ctx, span := d.tracer.Start(ctx, "run_task", trace.WithAttributes(attribute.String("task.id", id.String())))
	defer span.End()

	err := d.runTaskTraced(ctx, id)
	if err != nil && ctx.Err() == nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Driver) runTaskTraced(ctx context.Context, id TaskID) error {
	task, err := d.readPendingTask(ctx, id)
	if err != nil {
		if Is(err, KindTaskNotFound) || Is(err, KindUnexpectedTaskStatus) {
			// The task was removed, cancelled or already driven before this
			// driver got to it; nothing to do.
			return nil
		}
		return err
	}

	finishedTopic := FinishedTopic(id)
	event := d.events.Get(finishedTopic)
	defer func() {
		event.Notify()
		d.events.Delete(finishedTopic)
	}()

	op, ok := d.operations.Create(task.Operation.Type)
	if !ok {
		d.setFailed(ctx, id, fmt.Sprintf("Operation %s is not supported.", task.Operation.Type), event)
		return nil
	}
	cond, ok := d.conditions.Create(task.Condition.Type)
	if !ok {
		d.setFailed(ctx, id, fmt.Sprintf("Condition %s is not supported.", task.Condition.Type), event)
		return nil
	}

	deps, err := d.resolveDependencies(ctx, task.Dependencies)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var serr *SchedulerError
		if errors.As(err, &serr) {
			switch serr.Kind {
			case KindUnsuccessfulDependency:
				d.setFailed(ctx, id, fmt.Sprintf("Dependency %s finished with status %s.", serr.TaskID, serr.Status), event)
				return nil
			case KindDependencyNotFound:
				d.setFailed(ctx, id, fmt.Sprintf("Dependency %s not found.", serr.TaskID), event)
				return nil
			}
		}
		return err
	}

	if err := cond.Wait(ctx, task.Condition.Parameters); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.setFailed(ctx, id, fmt.Sprintf("Condition %s failed: %v.", task.Condition.Type, err), event)
		return nil
	}

	if err := d.setRunning(ctx, id); err != nil {
		d.log.Error("move to running failed", zap.Error(err), zap.String("task_id", id.String()))
		return err
	}

	result, err := op.Run(ctx, task.Operation.Parameters, deps)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.setFailed(ctx, id, fmt.Sprintf("Operation %s failed: %v.", task.Operation.Type, err), event)
		return nil
	}

	if err := d.setCompleted(ctx, id, result, event); err != nil {
		d.log.Error("move to completed failed", zap.Error(err), zap.String("task_id", id.String()))
		return err
	}
	return nil
}

// setRunning commits pending → running under the exclusive lock.
func (d *Driver) setRunning(ctx context.Context, id TaskID) error {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, err = d.modifier.MoveToRunning(ctx, id, time.Now().UTC())
	return err
}

// setFailed commits the failure and notifies finished while still holding
// the lock, so a Resolver awakened by the notification is guaranteed to
// observe the terminal record on its next read.
func (d *Driver) setFailed(ctx context.Context, id TaskID, message string, finished Event) {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return
	}
	defer release()
	if _, err := d.modifier.MoveToFailed(ctx, id, time.Now().UTC(), message); err != nil {
		d.log.Error("move to failed failed", zap.Error(err), zap.String("task_id", id.String()))
		return
	}
	d.log.Debug("task failed", zap.String("task_id", id.String()), zap.String("error", message))
	finished.Notify()
}

// setCompleted commits the result and notifies finished while still
// holding the lock.
func (d *Driver) setCompleted(ctx context.Context, id TaskID, result any, finished Event) error {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if _, err := d.modifier.MoveToCompleted(ctx, id, time.Now().UTC(), result); err != nil {
		return err
	}
	d.log.Debug("task completed", zap.String("task_id", id.String()))
	finished.Notify()
	return nil
}

// resolveDependencies resolves each declared dependency to its completed
// result, keyed by the local parameter name. A dependency that is unknown
// raises ErrDependencyNotFound; one that finished cancelled or failed
// raises ErrUnsuccessfulDependency.
func (d *Driver) resolveDependencies(ctx context.Context, dependencies map[string]TaskID) (map[string]any, error) {
	deps := make(map[string]any, len(dependencies))
	for name, depID := range dependencies {
		res, err := d.resolver.Resolve(ctx, depID)
		if err != nil {
			return nil, err
		}
		switch res.Kind {
		case ResolutionCompleted:
			deps[name] = res.Result
		case ResolutionNone:
			return nil, ErrDependencyNotFound(depID)
		case ResolutionCancelled:
			return nil, ErrUnsuccessfulDependency(depID, StatusCancelled)
		case ResolutionFailed:
			return nil, ErrUnsuccessfulDependency(depID, StatusFailed)
		}
	}
	return deps, nil
}

// readPendingTask loads id's task record under the lock. It raises
// ErrTaskNotFound for an unknown id and ErrUnexpectedTaskStatus for a
// known id that is no longer pending; the pipeline treats both as a
// silent exit.
func (d *Driver) readPendingTask(ctx context.Context, id TaskID) (Task, error) {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return Task{}, err
	}
	defer release()

	state, err := d.store.Get(ctx)
	if err != nil {
		return Task{}, err
	}
	status, ok := state.Statuses[id]
	if !ok {
		return Task{}, ErrTaskNotFound(id)
	}
	if status != StatusPending {
		return Task{}, ErrUnexpectedTaskStatus(id, status)
	}
	return state.Tasks.Pending[id].Task, nil
}

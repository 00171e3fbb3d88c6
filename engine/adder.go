package engine

import (
	"context"
	"time"
)

// AddRequest is the client-supplied shape for admitting a new task.
type AddRequest struct {
	Operation    Specification
	Condition    Specification
	Dependencies map[string]TaskID
}

// PendingTask is the public view of a freshly admitted task.
type PendingTask struct {
	ID        TaskID
	Task      Task
	Scheduled time.Time
}

// Adder validates an admission request and, under the lock, commits it via
// the Modifier and pushes the new id onto the queue.
type Adder struct {
	modifier   *Modifier
	lock       Lock
	queue      Queue[TaskID]
	operations OperationFactory
	conditions ConditionFactory
}

// NewAdder builds an Adder over the given collaborators.
func NewAdder(modifier *Modifier, lock Lock, queue Queue[TaskID], operations OperationFactory, conditions ConditionFactory) *Adder {
	return &Adder{modifier: modifier, lock: lock, queue: queue, operations: operations, conditions: conditions}
}

// Add admits req. Unknown operation or condition types fail the call
// before any state mutation.
func (a *Adder) Add(ctx context.Context, req AddRequest) (PendingTask, error) {
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return PendingTask{}, err
	}
	defer release()

	if _, ok := a.operations.Create(req.Operation.Type); !ok {
		return PendingTask{}, ErrInvalidOperation(req.Operation.Type)
	}
	if _, ok := a.conditions.Create(req.Condition.Type); !ok {
		return PendingTask{}, ErrInvalidCondition(req.Condition.Type)
	}

	id := NewTaskID()
	task := Task{Operation: req.Operation, Condition: req.Condition, Dependencies: req.Dependencies}
	record, err := a.modifier.AddPending(ctx, id, task, time.Now().UTC())
	if err != nil {
		return PendingTask{}, err
	}

	if err := a.queue.Put(ctx, id); err != nil {
		return PendingTask{}, err
	}

	return PendingTask{ID: id, Task: record.Task, Scheduled: record.Scheduled}, nil
}

package engine

import (
	"context"
	"time"
)

// CancelledTask is the public view of a task the Canceller just moved to
// cancelled.
type CancelledTask struct {
	ID        TaskID
	Task      Task
	Scheduled time.Time
	Started   *time.Time
	Cancelled time.Time
}

// Canceller commits a cancellation and wakes both the Driver's
// cancellation watcher and any Resolver blocked on the task. Both
// notifications happen while still holding the lock, so a woken waiter
// always observes the cancelled record on its next read.
type Canceller struct {
	modifier *Modifier
	lock     Lock
	events   *EventCache
}

// NewCanceller builds a Canceller over the given collaborators.
func NewCanceller(modifier *Modifier, lock Lock, events *EventCache) *Canceller {
	return &Canceller{modifier: modifier, lock: lock, events: events}
}

// Cancel moves id to cancelled and notifies cancelled:<id> and
// finished:<id>.
func (c *Canceller) Cancel(ctx context.Context, id TaskID) (CancelledTask, error) {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return CancelledTask{}, err
	}
	defer release()

	record, err := c.modifier.MoveToCancelled(ctx, id, time.Now().UTC())
	if err != nil {
		return CancelledTask{}, err
	}

	c.events.Get(CancelledTopic(id)).Notify()
	c.events.Get(FinishedTopic(id)).Notify()

	return CancelledTask{
		ID: id, Task: record.Task, Scheduled: record.Scheduled,
		Started: record.Started, Cancelled: record.Cancelled,
	}, nil
}

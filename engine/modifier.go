package engine

import (
	"context"
	"time"
)

// Modifier exposes the only write paths onto State. Every
// method is read → validate → mutate → write against the injected Store;
// callers are required to hold the exclusive Lock for the full call, since
// Modifier performs no locking of its own. If Set fails, the in-memory
// mutation is discarded and the store is left exactly as it was.
type Modifier struct {
	store Store[*State]
}

// NewModifier builds a Modifier over the given Store.
func NewModifier(store Store[*State]) *Modifier {
	return &Modifier{store: store}
}

// AddPending admits a new task. Every declared dependency must already be
// present in state.Statuses; otherwise the call fails with
// ErrDependencyNotFound, reported against id, the new task itself.
func (m *Modifier) AddPending(ctx context.Context, id TaskID, task Task, scheduled time.Time) (PendingRecord, error) {
	state, err := m.store.Get(ctx)
	if err != nil {
		return PendingRecord{}, err
	}

	for _, dep := range task.Dependencies {
		if _, ok := state.Statuses[dep]; !ok {
			return PendingRecord{}, ErrDependencyNotFound(id)
		}
	}

	record := PendingRecord{Task: task, Scheduled: scheduled}
	state.Tasks.Pending[id] = record
	state.Statuses[id] = StatusPending

	if len(task.Dependencies) > 0 {
		deps := make(Set, len(task.Dependencies))
		for _, dep := range task.Dependencies {
			deps.add(dep)
			if state.Relationships.Dependents[dep] == nil {
				state.Relationships.Dependents[dep] = newSet()
			}
			state.Relationships.Dependents[dep].add(id)
		}
		state.Relationships.Dependencies[id] = deps
	}

	if err := m.store.Set(ctx, state); err != nil {
		return PendingRecord{}, err
	}
	return record, nil
}

// MoveToRunning requires status(id) == pending; relocates the record from
// pending into running, setting started.
func (m *Modifier) MoveToRunning(ctx context.Context, id TaskID, started time.Time) (RunningRecord, error) {
	state, err := m.store.Get(ctx)
	if err != nil {
		return RunningRecord{}, err
	}

	status, ok := state.Statuses[id]
	if !ok {
		return RunningRecord{}, ErrTaskNotFound(id)
	}
	if status != StatusPending {
		return RunningRecord{}, ErrTaskStatusError(id, status)
	}

	pending := state.Tasks.Pending[id]
	delete(state.Tasks.Pending, id)
	record := RunningRecord{Task: pending.Task, Scheduled: pending.Scheduled, Started: started}
	state.Tasks.Running[id] = record
	state.Statuses[id] = StatusRunning

	if err := m.store.Set(ctx, state); err != nil {
		return RunningRecord{}, err
	}
	return record, nil
}

// MoveToCancelled requires status(id) ∈ {pending, running}. Started is
// carried forward from a running record, or left nil if the task was
// cancelled while still pending.
func (m *Modifier) MoveToCancelled(ctx context.Context, id TaskID, cancelled time.Time) (CancelledRecord, error) {
	state, err := m.store.Get(ctx)
	if err != nil {
		return CancelledRecord{}, err
	}

	status, ok := state.Statuses[id]
	if !ok {
		return CancelledRecord{}, ErrTaskNotFound(id)
	}

	var record CancelledRecord
	switch status {
	case StatusPending:
		pending := state.Tasks.Pending[id]
		delete(state.Tasks.Pending, id)
		record = CancelledRecord{Task: pending.Task, Scheduled: pending.Scheduled, Cancelled: cancelled}
	case StatusRunning:
		running := state.Tasks.Running[id]
		delete(state.Tasks.Running, id)
		started := running.Started
		record = CancelledRecord{Task: running.Task, Scheduled: running.Scheduled, Started: &started, Cancelled: cancelled}
	default:
		return CancelledRecord{}, ErrTaskStatusError(id, status)
	}

	state.Tasks.Cancelled[id] = record
	state.Statuses[id] = StatusCancelled

	if err := m.store.Set(ctx, state); err != nil {
		return CancelledRecord{}, err
	}
	return record, nil
}

// MoveToFailed requires status(id) ∈ {pending, running}. Started is
// carried forward from a running record, or left nil when the task
// failed before it ever ran — the driver fails still-pending tasks on
// unknown plugin types, unsuccessful dependencies and raising
// conditions.
func (m *Modifier) MoveToFailed(ctx context.Context, id TaskID, failed time.Time, cause string) (FailedRecord, error) {
	state, err := m.store.Get(ctx)
	if err != nil {
		return FailedRecord{}, err
	}

	status, ok := state.Statuses[id]
	if !ok {
		return FailedRecord{}, ErrTaskNotFound(id)
	}

	var record FailedRecord
	switch status {
	case StatusPending:
		pending := state.Tasks.Pending[id]
		delete(state.Tasks.Pending, id)
		record = FailedRecord{Task: pending.Task, Scheduled: pending.Scheduled, Failed: failed, Error: cause}
	case StatusRunning:
		running := state.Tasks.Running[id]
		delete(state.Tasks.Running, id)
		started := running.Started
		record = FailedRecord{
			Task: running.Task, Scheduled: running.Scheduled, Started: &started,
			Failed: failed, Error: cause,
		}
	default:
		return FailedRecord{}, ErrTaskStatusError(id, status)
	}
	state.Tasks.Failed[id] = record
	state.Statuses[id] = StatusFailed

	if err := m.store.Set(ctx, state); err != nil {
		return FailedRecord{}, err
	}
	return record, nil
}

// MoveToCompleted requires status(id) == running.
func (m *Modifier) MoveToCompleted(ctx context.Context, id TaskID, completed time.Time, result any) (CompletedRecord, error) {
	state, err := m.store.Get(ctx)
	if err != nil {
		return CompletedRecord{}, err
	}

	status, ok := state.Statuses[id]
	if !ok {
		return CompletedRecord{}, ErrTaskNotFound(id)
	}
	if status != StatusRunning {
		return CompletedRecord{}, ErrTaskStatusError(id, status)
	}

	running := state.Tasks.Running[id]
	delete(state.Tasks.Running, id)
	record := CompletedRecord{
		Task: running.Task, Scheduled: running.Scheduled, Started: running.Started,
		Completed: completed, Result: result,
	}
	state.Tasks.Completed[id] = record
	state.Statuses[id] = StatusCompleted

	if err := m.store.Set(ctx, state); err != nil {
		return CompletedRecord{}, err
	}
	return record, nil
}

// Predicate decides, given a fully materialized public view, whether its
// task may be removed. A predicate returning false leaves the task in
// place.
type Predicate func(ctx context.Context, task PublicView) (bool, error)

// RemoveStale iteratively removes finished tasks that have no live
// dependent and pass predicate, until a pass removes nothing. It is a
// fixed point, not a bounded number of passes: each removal clears the
// task's own dependency edges and drops the back-edge on each of its
// dependencies, which can make a previously-blocked removal eligible in
// a later pass.
//
// Each pass brackets its candidate gathering and its removal commit in
// separate lock acquisitions, but calls predicate in between with the
// lock released. The predicate may itself block or call out to a
// plugin, and must never do so while holding the lock other callers
// need to make progress. Candidates a concurrent writer invalidates
// between the two acquisitions are re-checked before removal and
// dropped if they no longer qualify.
func (m *Modifier) RemoveStale(ctx context.Context, lock Lock, predicate Predicate) (Set, error) {
	removed := newSet()

	for {
		approved, err := m.gatherApprovedCandidates(ctx, lock, predicate)
		if err != nil {
			return nil, err
		}
		if len(approved) == 0 {
			return removed, nil
		}

		removedThisPass, err := m.commitRemovals(ctx, lock, approved)
		if err != nil {
			return nil, err
		}
		if len(removedThisPass) == 0 {
			return removed, nil
		}
		for _, id := range removedThisPass {
			removed.add(id)
		}
	}
}

func (m *Modifier) gatherApprovedCandidates(ctx context.Context, lock Lock, predicate Predicate) ([]TaskID, error) {
	release, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	state, err := m.store.Get(ctx)
	release()
	if err != nil {
		return nil, err
	}

	var views []PublicView
	for _, id := range finishedCandidates(state) {
		if _, hasDependents := state.Relationships.Dependents[id]; hasDependents {
			continue
		}
		if view, ok := state.publicView(id); ok {
			views = append(views, view)
		}
	}

	var approved []TaskID
	for _, view := range views {
		ok, err := predicate(ctx, view)
		if err != nil {
			return nil, err
		}
		if ok {
			approved = append(approved, view.ID)
		}
	}
	return approved, nil
}

func (m *Modifier) commitRemovals(ctx context.Context, lock Lock, approved []TaskID) ([]TaskID, error) {
	release, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	var removedThisPass []TaskID
	for _, id := range approved {
		if _, hasDependents := state.Relationships.Dependents[id]; hasDependents {
			continue
		}
		if _, ok := state.publicView(id); !ok {
			continue
		}
		removeTask(state, id)
		removedThisPass = append(removedThisPass, id)
	}

	if len(removedThisPass) == 0 {
		return nil, nil
	}
	if err := m.store.Set(ctx, state); err != nil {
		return nil, err
	}
	return removedThisPass, nil
}

func finishedCandidates(state *State) []TaskID {
	var ids []TaskID
	for id := range state.Tasks.Cancelled {
		ids = append(ids, id)
	}
	for id := range state.Tasks.Failed {
		ids = append(ids, id)
	}
	for id := range state.Tasks.Completed {
		ids = append(ids, id)
	}
	return ids
}

// removeTask deletes id's record and status, clears its outgoing
// dependency edges, and for each of those dependencies drops the back-edge
// (dropping the dependents entry entirely once it becomes empty).
func removeTask(state *State, id TaskID) {
	delete(state.Tasks.Cancelled, id)
	delete(state.Tasks.Failed, id)
	delete(state.Tasks.Completed, id)
	delete(state.Statuses, id)

	deps := state.Relationships.Dependencies[id]
	delete(state.Relationships.Dependencies, id)
	for dep := range deps {
		if back := state.Relationships.Dependents[dep]; back != nil {
			back.remove(id)
			if len(back) == 0 {
				delete(state.Relationships.Dependents, dep)
			}
		}
	}
	delete(state.Relationships.Dependents, id)
}

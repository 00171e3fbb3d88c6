package engine

import "context"

// Readers exposes the engine's read-only views. Every method acquires the
// lock, loads state, releases the lock and returns a materialized copy
// — no caller ever sees a reference into live state.
type Readers struct {
	store Store[*State]
	lock  Lock
}

// NewReaders builds a Readers over the given store and lock.
func NewReaders(store Store[*State], lock Lock) *Readers {
	return &Readers{store: store, lock: lock}
}

func (r *Readers) withState(ctx context.Context, fn func(*State)) error {
	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	state, err := r.store.Get(ctx)
	if err != nil {
		return err
	}
	fn(state)
	return nil
}

// GetPending returns id's pending record, if it has one.
func (r *Readers) GetPending(ctx context.Context, id TaskID) (PendingRecord, bool, error) {
	var rec PendingRecord
	var ok bool
	err := r.withState(ctx, func(s *State) { rec, ok = s.Tasks.Pending[id] })
	return rec, ok, err
}

// GetRunning returns id's running record, if it has one.
func (r *Readers) GetRunning(ctx context.Context, id TaskID) (RunningRecord, bool, error) {
	var rec RunningRecord
	var ok bool
	err := r.withState(ctx, func(s *State) { rec, ok = s.Tasks.Running[id] })
	return rec, ok, err
}

// GetCancelled returns id's cancelled record, if it has one.
func (r *Readers) GetCancelled(ctx context.Context, id TaskID) (CancelledRecord, bool, error) {
	var rec CancelledRecord
	var ok bool
	err := r.withState(ctx, func(s *State) { rec, ok = s.Tasks.Cancelled[id] })
	return rec, ok, err
}

// GetFailed returns id's failed record, if it has one.
func (r *Readers) GetFailed(ctx context.Context, id TaskID) (FailedRecord, bool, error) {
	var rec FailedRecord
	var ok bool
	err := r.withState(ctx, func(s *State) { rec, ok = s.Tasks.Failed[id] })
	return rec, ok, err
}

// GetCompleted returns id's completed record, if it has one.
func (r *Readers) GetCompleted(ctx context.Context, id TaskID) (CompletedRecord, bool, error) {
	var rec CompletedRecord
	var ok bool
	err := r.withState(ctx, func(s *State) { rec, ok = s.Tasks.Completed[id] })
	return rec, ok, err
}

// Get returns the aggregate, status-agnostic view of id.
func (r *Readers) Get(ctx context.Context, id TaskID) (GenericTask, bool, error) {
	var gt GenericTask
	var ok bool
	err := r.withState(ctx, func(s *State) { gt, ok = s.genericTask(id) })
	return gt, ok, err
}

// List returns every known id grouped by status.
func (r *Readers) List(ctx context.Context) (TaskIndex, error) {
	var idx TaskIndex
	err := r.withState(ctx, func(s *State) { idx = s.index() })
	return idx, err
}

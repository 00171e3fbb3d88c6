package engine

import "context"

// ResolutionKind discriminates a Resolution: unknown id, or one of the
// three terminal outcomes.
type ResolutionKind int

const (
	ResolutionNone ResolutionKind = iota
	ResolutionCancelled
	ResolutionFailed
	ResolutionCompleted
)

// Resolution is the typed result of resolving a task id: unknown, or one
// of the three terminal shapes.
type Resolution struct {
	Kind   ResolutionKind
	Error  string
	Result any
}

// ResultResolver blocks until a task's terminal status is known and
// returns a typed Resolution.
type ResultResolver struct {
	store  Store[*State]
	lock   Lock
	events *EventCache
}

// NewResultResolver builds a ResultResolver over the given collaborators.
func NewResultResolver(store Store[*State], lock Lock, events *EventCache) *ResultResolver {
	return &ResultResolver{store: store, lock: lock, events: events}
}

// Resolve blocks until id is terminal. The watcher on finished:<id> is
// created before the first state read so that a notification landing
// between the read and the wait can never be missed.
func (r *ResultResolver) Resolve(ctx context.Context, id TaskID) (Resolution, error) {
	watcher := r.events.Get(FinishedTopic(id))

	status, ok, err := r.readStatus(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{Kind: ResolutionNone}, nil
	}
	if status.Terminal() {
		return r.readResolution(ctx, id)
	}

	if err := watcher.Wait(ctx); err != nil {
		return Resolution{}, err
	}

	return r.readResolution(ctx, id)
}

func (r *ResultResolver) readStatus(ctx context.Context, id TaskID) (Status, bool, error) {
	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer release()

	state, err := r.store.Get(ctx)
	if err != nil {
		return "", false, err
	}
	status, ok := state.Statuses[id]
	return status, ok, nil
}

// readResolution re-reads state and returns the Resolution matching
// whatever status id now has, or None if id was removed between the
// notification and this read.
func (r *ResultResolver) readResolution(ctx context.Context, id TaskID) (Resolution, error) {
	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return Resolution{}, err
	}
	defer release()

	state, err := r.store.Get(ctx)
	if err != nil {
		return Resolution{}, err
	}

	status, ok := state.Statuses[id]
	if !ok {
		return Resolution{Kind: ResolutionNone}, nil
	}

	switch status {
	case StatusCancelled:
		return Resolution{Kind: ResolutionCancelled}, nil
	case StatusFailed:
		rec := state.Tasks.Failed[id]
		return Resolution{Kind: ResolutionFailed, Error: rec.Error}, nil
	case StatusCompleted:
		rec := state.Tasks.Completed[id]
		return Resolution{Kind: ResolutionCompleted, Result: rec.Result}, nil
	default:
		// Not yet terminal: the finished event fired for a different
		// generation or the caller raced a non-terminal read. Treat as
		// unknown to the caller rather than returning a stale pending view.
		return Resolution{Kind: ResolutionNone}, nil
	}
}

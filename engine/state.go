package engine

// Set is an unordered collection of task ids. It serializes as a JSON
// array and tolerates any element ordering on decode.
type Set map[TaskID]struct{}

func newSet(ids ...TaskID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) add(id TaskID)    { s[id] = struct{}{} }
func (s Set) remove(id TaskID) { delete(s, id) }
func (s Set) has(id TaskID) bool {
	_, ok := s[id]
	return ok
}

// Tasks holds the five disjoint per-status mappings: every id in
// Statuses appears in exactly one of these, and their domains are
// pairwise disjoint.
type Tasks struct {
	Pending   map[TaskID]PendingRecord   `json:"pending"`
	Running   map[TaskID]RunningRecord   `json:"running"`
	Cancelled map[TaskID]CancelledRecord `json:"cancelled"`
	Failed    map[TaskID]FailedRecord    `json:"failed"`
	Completed map[TaskID]CompletedRecord `json:"completed"`
}

// Relationships is the DAG index: forward edges (a task's declared
// dependencies) and the back-edge mirror (its dependents), kept in sync by
// the Modifier. An id's entry is omitted when its
// set would be empty.
type Relationships struct {
	Dependencies map[TaskID]Set `json:"dependencies"`
	Dependents   map[TaskID]Set `json:"dependents"`
}

// State is the aggregate root persisted through the pluggable Store. It is
// conceptually owned by the store: callers fetch, mutate under the
// exclusive Lock, and write back. No copy is cached between operations.
type State struct {
	Tasks         Tasks             `json:"tasks"`
	Statuses      map[TaskID]Status `json:"statuses"`
	Relationships Relationships     `json:"relationships"`
}

// NewState returns an empty, well-formed State.
func NewState() *State {
	return &State{
		Tasks: Tasks{
			Pending:   make(map[TaskID]PendingRecord),
			Running:   make(map[TaskID]RunningRecord),
			Cancelled: make(map[TaskID]CancelledRecord),
			Failed:    make(map[TaskID]FailedRecord),
			Completed: make(map[TaskID]CompletedRecord),
		},
		Statuses: make(map[TaskID]Status),
		Relationships: Relationships{
			Dependencies: make(map[TaskID]Set),
			Dependents:   make(map[TaskID]Set),
		},
	}
}

// publicView materializes the status-agnostic PublicView for id, or false
// if id is unknown. Used by readers and by the reaper's predicate.
func (s *State) publicView(id TaskID) (PublicView, bool) {
	status, ok := s.Statuses[id]
	if !ok {
		return PublicView{}, false
	}
	view := PublicView{ID: id, Status: status}
	switch status {
	case StatusPending:
		rec := s.Tasks.Pending[id]
		view.Task, view.Scheduled = rec.Task, rec.Scheduled
	case StatusRunning:
		rec := s.Tasks.Running[id]
		view.Task, view.Scheduled, view.Started = rec.Task, rec.Scheduled, &rec.Started
	case StatusCancelled:
		rec := s.Tasks.Cancelled[id]
		view.Task, view.Scheduled, view.Started = rec.Task, rec.Scheduled, rec.Started
		view.Cancelled = &rec.Cancelled
	case StatusFailed:
		rec := s.Tasks.Failed[id]
		view.Task, view.Scheduled, view.Started = rec.Task, rec.Scheduled, rec.Started
		view.Failed, view.Error = &rec.Failed, rec.Error
	case StatusCompleted:
		rec := s.Tasks.Completed[id]
		view.Task, view.Scheduled, view.Started = rec.Task, rec.Scheduled, &rec.Started
		view.Completed, view.Result = &rec.Completed, rec.Result
	}
	return view, true
}

func (s *State) genericTask(id TaskID) (GenericTask, bool) {
	status, ok := s.Statuses[id]
	if !ok {
		return GenericTask{}, false
	}
	var task Task
	switch status {
	case StatusPending:
		task = s.Tasks.Pending[id].Task
	case StatusRunning:
		task = s.Tasks.Running[id].Task
	case StatusCancelled:
		task = s.Tasks.Cancelled[id].Task
	case StatusFailed:
		task = s.Tasks.Failed[id].Task
	case StatusCompleted:
		task = s.Tasks.Completed[id].Task
	}
	return GenericTask{ID: id, Task: task, Status: status}, true
}

// Clone returns a deep copy of the state, independent of any maps or sets
// in s. Store adapters that keep state in memory use it so mutation of a
// fetched copy never leaks into another caller's view before Set commits
// it.
func (s *State) Clone() *State {
	out := NewState()
	for id, r := range s.Tasks.Pending {
		out.Tasks.Pending[id] = r
	}
	for id, r := range s.Tasks.Running {
		out.Tasks.Running[id] = r
	}
	for id, r := range s.Tasks.Cancelled {
		out.Tasks.Cancelled[id] = r
	}
	for id, r := range s.Tasks.Failed {
		out.Tasks.Failed[id] = r
	}
	for id, r := range s.Tasks.Completed {
		out.Tasks.Completed[id] = r
	}
	for id, st := range s.Statuses {
		out.Statuses[id] = st
	}
	for id, set := range s.Relationships.Dependencies {
		out.Relationships.Dependencies[id] = cloneSet(set)
	}
	for id, set := range s.Relationships.Dependents {
		out.Relationships.Dependents[id] = cloneSet(set)
	}
	return out
}

func cloneSet(s Set) Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s *State) index() TaskIndex {
	idx := TaskIndex{}
	for id := range s.Tasks.Pending {
		idx.Pending = append(idx.Pending, id)
	}
	for id := range s.Tasks.Running {
		idx.Running = append(idx.Running, id)
	}
	for id := range s.Tasks.Cancelled {
		idx.Cancelled = append(idx.Cancelled, id)
	}
	for id := range s.Tasks.Failed {
		idx.Failed = append(idx.Failed, id)
	}
	for id := range s.Tasks.Completed {
		idx.Completed = append(idx.Completed, id)
	}
	return idx
}

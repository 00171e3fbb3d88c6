package engine

import "time"

// PendingRecord is the record for a task admitted but not yet running.
type PendingRecord struct {
	Task      Task      `json:"task"`
	Scheduled time.Time `json:"scheduled"`
}

// RunningRecord is the record for a task whose condition resolved and whose
// operation has started.
type RunningRecord struct {
	Task      Task      `json:"task"`
	Scheduled time.Time `json:"scheduled"`
	Started   time.Time `json:"started"`
}

// CancelledRecord is the record for a task cancelled while pending or
// running. Started is nil when the task was cancelled before it ever ran.
type CancelledRecord struct {
	Task      Task       `json:"task"`
	Scheduled time.Time  `json:"scheduled"`
	Started   *time.Time `json:"started"`
	Cancelled time.Time  `json:"cancelled"`
}

// FailedRecord is the record for a task whose condition or operation
// raised, or whose dependencies resolved unsuccessfully. Started is nil
// when the failure happened before the task ever ran (an unknown plugin
// type, a failed dependency or a raising condition all fail the task
// while it is still pending).
type FailedRecord struct {
	Task      Task       `json:"task"`
	Scheduled time.Time  `json:"scheduled"`
	Started   *time.Time `json:"started"`
	Failed    time.Time  `json:"failed"`
	Error     string     `json:"error"`
}

// CompletedRecord is the record for a task whose operation returned a
// result.
type CompletedRecord struct {
	Task      Task      `json:"task"`
	Scheduled time.Time `json:"scheduled"`
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
	Result    any       `json:"result"`
}

// GenericTask is the aggregate reader's per-id view: the task plus its
// current status, without the status-specific timestamps.
type GenericTask struct {
	ID     TaskID
	Task   Task
	Status Status
}

// TaskIndex groups all known ids by status, as returned by the aggregate
// reader's list().
type TaskIndex struct {
	Pending   []TaskID
	Running   []TaskID
	Cancelled []TaskID
	Failed    []TaskID
	Completed []TaskID
}

// PublicView is the fully materialized, status-agnostic view of a task
// handed to cleaning-strategy predicates and to callers that want a single
// shape regardless of which status-specific record backs it. Fields that
// don't apply to the current status are left at their zero value.
type PublicView struct {
	ID        TaskID
	Task      Task
	Status    Status
	Scheduled time.Time
	Started   *time.Time
	Cancelled *time.Time
	Failed    *time.Time
	Error     string
	Completed *time.Time
	Result    any
}

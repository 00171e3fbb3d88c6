// Package engine implements the in-process task coordination engine: the
// state model, the atomic modifier, the event cache, the result resolver,
// the per-task driver, the dispatcher, the adder/canceller and the reaper.
package engine

import "github.com/google/uuid"

// TaskID uniquely identifies a submitted task. Assigned at admission time
// and never reused.
type TaskID string

// NewTaskID mints a fresh, globally unique task id.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

func (id TaskID) String() string { return string(id) }

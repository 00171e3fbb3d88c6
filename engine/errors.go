package engine

import (
	"errors"
	"fmt"
)

// Kind identifies an error category. Callers discriminate on Kind via
// errors.As against *SchedulerError rather than matching message text.
type Kind string

const (
	KindInvalidOperation        Kind = "INVALID_OPERATION"
	KindInvalidCondition        Kind = "INVALID_CONDITION"
	KindInvalidCleaningStrategy Kind = "INVALID_CLEANING_STRATEGY"
	KindDependencyNotFound      Kind = "DEPENDENCY_NOT_FOUND"
	KindTaskNotFound            Kind = "TASK_NOT_FOUND"
	KindTaskStatusError         Kind = "TASK_STATUS_ERROR"
	KindUnsuccessfulDependency  Kind = "UNSUCCESSFUL_DEPENDENCY"
	KindUnexpectedTaskStatus    Kind = "UNEXPECTED_TASK_STATUS"
)

// SchedulerError is the engine's single error type: a Kind plus a
// human-readable message and, for transition errors, the offending task id.
type SchedulerError struct {
	Kind    Kind
	TaskID  TaskID
	Status  Status
	Message string
	Err     error
}

func (e *SchedulerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string) *SchedulerError {
	return &SchedulerError{Kind: kind, Message: msg}
}

// ErrInvalidOperation reports an unknown operation type, at admission or
// converted to a task failure at run time.
func ErrInvalidOperation(opType string) *SchedulerError {
	return newErr(KindInvalidOperation, fmt.Sprintf("operation %q is not supported", opType))
}

// ErrInvalidCondition reports an unknown condition type.
func ErrInvalidCondition(condType string) *SchedulerError {
	return newErr(KindInvalidCondition, fmt.Sprintf("condition %q is not supported", condType))
}

// ErrInvalidCleaningStrategy reports an unknown cleaning strategy type.
func ErrInvalidCleaningStrategy(strategyType string) *SchedulerError {
	return newErr(KindInvalidCleaningStrategy, fmt.Sprintf("cleaning strategy %q is not supported", strategyType))
}

// ErrDependencyNotFound reports a missing dependency. The driver passes
// the missing dependency's id; Modifier.AddPending passes the id of the
// new task that declared it, so admission errors are reported against
// that task.
func ErrDependencyNotFound(dep TaskID) *SchedulerError {
	e := newErr(KindDependencyNotFound, fmt.Sprintf("dependency %s not found", dep))
	e.TaskID = dep
	return e
}

// ErrTaskNotFound reports a transition attempted on an unknown id.
func ErrTaskNotFound(id TaskID) *SchedulerError {
	e := newErr(KindTaskNotFound, fmt.Sprintf("task %s not found", id))
	e.TaskID = id
	return e
}

// ErrTaskStatusError reports a transition forbidden from the task's current
// status.
func ErrTaskStatusError(id TaskID, status Status) *SchedulerError {
	e := newErr(KindTaskStatusError, fmt.Sprintf("task %s has status %s", id, status))
	e.TaskID, e.Status = id, status
	return e
}

// ErrUnsuccessfulDependency reports that a dependency resolved to a
// non-completed terminal status.
func ErrUnsuccessfulDependency(id TaskID, status Status) *SchedulerError {
	e := newErr(KindUnsuccessfulDependency, fmt.Sprintf("dependency %s finished with status %s", id, status))
	e.TaskID, e.Status = id, status
	return e
}

// ErrUnexpectedTaskStatus reports an invariant violated at driver entry.
func ErrUnexpectedTaskStatus(id TaskID, status Status) *SchedulerError {
	e := newErr(KindUnexpectedTaskStatus, fmt.Sprintf("unexpected status %s for task %s", status, id))
	e.TaskID, e.Status = id, status
	return e
}

// Is reports whether err is a *SchedulerError of the given kind.
func Is(err error, kind Kind) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

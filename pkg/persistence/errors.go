// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrPausedExecutionNotFound indicates no paused execution exists for the given execution id.
	ErrPausedExecutionNotFound = errors.New("paused execution not found")

	// ErrPausePointNotFound indicates no pause point exists for the given context id.
	ErrPausePointNotFound = errors.New("pause point not found")

	// ErrQueueEntryNotFound indicates no resume queue entry exists for the given id.
	ErrQueueEntryNotFound = errors.New("resume queue entry not found")

	// ErrResumeAlreadyClaimed indicates another resume entry for the same
	// pause point is currently claimed.
	ErrResumeAlreadyClaimed = errors.New("resume already claimed for pause point")

	// ErrNoQueuedResume indicates the resume queue for a pause point is empty.
	ErrNoQueuedResume = errors.New("no queued resume entry for pause point")
)

// WorkflowError wraps workflow storage errors with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// PauseError wraps pause storage errors with operation context. ContextID is
// empty for operations keyed by execution id.
type PauseError struct {
	Op          string
	ExecutionID string
	ContextID   string
	Err         error
}

func (e *PauseError) Error() string {
	key := e.ExecutionID
	if e.ContextID != "" {
		key = fmt.Sprintf("context %s", e.ContextID)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, key, e.Err)
}

func (e *PauseError) Unwrap() error {
	return e.Err
}

func (e *PauseError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewPauseError(op, contextID string, err error) *PauseError {
	return &PauseError{Op: op, ContextID: contextID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsPausePointNotFound checks if an error indicates a pause point was not found.
func IsPausePointNotFound(err error) bool {
	return errors.Is(err, ErrPausePointNotFound)
}

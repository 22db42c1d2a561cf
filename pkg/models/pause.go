package models

import "time"

// PauseStatus is the overall status of a paused execution.
type PauseStatus string

const (
	PauseStatusPaused   PauseStatus = "paused"
	PauseStatusResuming PauseStatus = "resuming"
	PauseStatusResumed  PauseStatus = "resumed"
	PauseStatusFailed   PauseStatus = "failed"
)

// ResumeStatus is the per-pause-point state machine:
// paused -> queued -> resuming -> resumed, or -> failed from any
// non-terminal state.
type ResumeStatus string

const (
	ResumeStatusPaused   ResumeStatus = "paused"
	ResumeStatusQueued   ResumeStatus = "queued"
	ResumeStatusResuming ResumeStatus = "resuming"
	ResumeStatusResumed  ResumeStatus = "resumed"
	ResumeStatusFailed   ResumeStatus = "failed"
)

// IsTerminal reports whether no further resume transitions are allowed.
func (s ResumeStatus) IsTerminal() bool {
	return s == ResumeStatusResumed || s == ResumeStatusFailed
}

// QueueEntryStatus tracks one resume attempt through the queue.
type QueueEntryStatus string

const (
	QueueEntryStatusQueued    QueueEntryStatus = "queued"
	QueueEntryStatusClaimed   QueueEntryStatus = "claimed"
	QueueEntryStatusCompleted QueueEntryStatus = "completed"
	QueueEntryStatusFailed    QueueEntryStatus = "failed"
)

// PausedExecution is the durable record of a run that suspended. One per run;
// a run may accumulate multiple pause points across its lifetime.
type PausedExecution struct {
	WorkflowID      string      `json:"workflow_id"`
	ExecutionID     string      `json:"execution_id"`
	Status          PauseStatus `json:"status"`
	TotalPauseCount int         `json:"total_pause_count"`
	ResumedCount    int         `json:"resumed_count"`

	// State is the serialized ExecutionContext captured at suspension time.
	State *ExecutionContext `json:"state"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the pause is past its advisory expiry.
func (pe *PausedExecution) Expired(now time.Time) bool {
	return pe.ExpiresAt != nil && now.After(*pe.ExpiresAt)
}

// PausePoint is one distinct suspension site within a run, keyed by context
// id. Parallel branches may pause a run at several points concurrently.
type PausePoint struct {
	ContextID      string       `json:"context_id"`
	WorkflowID     string       `json:"workflow_id"`
	ExecutionID    string       `json:"execution_id"`
	TriggerBlockID string       `json:"trigger_block_id"`
	ResumeStatus   ResumeStatus `json:"resume_status"`

	// Payload is the captured request/response data needed to resume.
	Payload map[string]any `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResumeQueueEntry is one resume attempt against a pause point. At most one
// entry per pause point may be claimed at a time.
type ResumeQueueEntry struct {
	ID        string           `json:"id"`
	ContextID string           `json:"context_id"`
	Status    QueueEntryStatus `json:"status"`

	// ResumeInput is caller-supplied data merged into the suspended block's
	// output before re-entering the graph.
	ResumeInput map[string]any `json:"resume_input,omitempty"`

	// NewExecutionID identifies the execution spawned to continue the graph.
	NewExecutionID string `json:"new_execution_id,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

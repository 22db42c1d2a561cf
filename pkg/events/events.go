// Package events defines the event types exchanged between the API and the
// workers over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "wove.events"                      // Execution lifecycle events
const ResumeTopic = "wove.execution.resumptions" // Resume queue notifications

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	// Pause and resume events.
	ExecutionPausedEvent  EventType = "execution.paused"
	ResumeRequestedEvent  EventType = "execution.resume.requested"
	ExecutionResumedEvent EventType = "execution.resumed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the shared envelope fields.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// ExecutionRequested asks a worker to start a workflow run.
type ExecutionRequested struct {
	BaseEvent

	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	WorkflowName string `json:"workflow_name,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string         `json:"execution_id"`
	DurationMs     int64          `json:"duration_ms"`
	BlocksExecuted int            `json:"blocks_executed"`
	FinalResults   map[string]any `json:"final_results,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionPaused is emitted when a run suspends at a trigger block. The
// context id is the durable key external callers resume against.
type ExecutionPaused struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	ContextID      string `json:"context_id"`
	TriggerBlockID string `json:"trigger_block_id"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

// ResumeRequested signals that a resume entry was queued for a pause point.
type ResumeRequested struct {
	BaseEvent

	ContextID    string `json:"context_id"`
	QueueEntryID string `json:"queue_entry_id"`
}

func (e ResumeRequested) GetType() EventType {
	return ResumeRequestedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ContextID           string `json:"context_id"`
	PreviousExecutionID string `json:"previous_execution_id"`
	NewExecutionID      string `json:"new_execution_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

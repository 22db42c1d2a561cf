// Package pause implements the durable pause/resume lifecycle: recording
// suspensions, answering pause-context lookups, queueing resume requests and
// the single consumer that claims and replays them.
package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
	"github.com/karzal/wove/pkg/protocol"
)

// Receipt statuses returned by RequestResume.
const (
	StatusQueued   = "queued"
	StatusResuming = "resuming"
)

// Manager owns the durable pause records: one PausedExecution per run, one
// PausePoint per suspension site and a queue of resume attempts per point.
type Manager struct {
	store     persistence.PauseRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	// expiry, when positive, stamps new paused executions with an advisory
	// expires_at. Zero means pauses never expire.
	expiry time.Duration
}

func NewManager(store persistence.PauseRepository, publisher eventbus.EventPublisher, logger *slog.Logger, expiry time.Duration) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		logger:    logger.With("module", "pause_manager"),
		expiry:    expiry,
	}
}

// RecordPause persists a suspension hand-off from the executor: the run's
// context snapshot, the pause point keyed by the suspension's context id and
// an ExecutionPaused event. Once this returns the caller may discard all
// in-memory state; resumption rebuilds everything from storage.
func (m *Manager) RecordPause(ctx context.Context, wf *models.Workflow, suspension *protocol.Suspension, execCtx *models.ExecutionContext) error {
	paused, err := m.store.PausedExecution(ctx, execCtx.ExecutionID)
	if err != nil {
		if !errors.Is(err, persistence.ErrPausedExecutionNotFound) {
			return fmt.Errorf("failed to load paused execution: %w", err)
		}

		paused = &models.PausedExecution{
			WorkflowID:  wf.ID,
			ExecutionID: execCtx.ExecutionID,
		}

		if m.expiry > 0 {
			expiresAt := time.Now().UTC().Add(m.expiry)
			paused.ExpiresAt = &expiresAt
		}
	}

	paused.Status = models.PauseStatusPaused
	paused.State = execCtx
	paused.TotalPauseCount++

	if err := m.store.SavePausedExecution(ctx, paused); err != nil {
		return fmt.Errorf("failed to save paused execution: %w", err)
	}

	point := &models.PausePoint{
		ContextID:      suspension.ContextID,
		WorkflowID:     wf.ID,
		ExecutionID:    execCtx.ExecutionID,
		TriggerBlockID: suspension.TriggerBlockID,
		ResumeStatus:   models.ResumeStatusPaused,
		Payload:        suspension.Payload,
	}

	if err := m.store.SavePausePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to save pause point: %w", err)
	}

	m.logger.InfoContext(ctx, "Execution paused",
		"workflow_id", wf.ID,
		"execution_id", execCtx.ExecutionID,
		"context_id", suspension.ContextID,
		"trigger_block_id", suspension.TriggerBlockID,
	)

	m.publish(ctx, wf.ID, events.ExecutionPaused{
		BaseEvent:      events.NewBaseEvent(events.ExecutionPausedEvent, wf.ID),
		ExecutionID:    execCtx.ExecutionID,
		ContextID:      suspension.ContextID,
		TriggerBlockID: suspension.TriggerBlockID,
	})

	return nil
}

// ContextDetail is the read model for one pause point: the paused run, the
// point itself, its full resume attempt history and the entry currently in
// flight.
type ContextDetail struct {
	Execution *models.PausedExecution    `json:"execution"`
	Point     *models.PausePoint         `json:"point"`
	Entries   []*models.ResumeQueueEntry `json:"entries"`

	// ActiveEntry is the claimed entry, or the head of the queue when
	// nothing is claimed. Nil when no attempt is pending.
	ActiveEntry *models.ResumeQueueEntry `json:"active_entry,omitempty"`

	// QueuePosition is the 1-based position of ActiveEntry while it is
	// still queued; zero once claimed or when no attempt is pending.
	QueuePosition int `json:"queue_position"`
}

// GetPauseContextDetail answers a pause-status poll. Missing records and
// executions past their expiry both come back as ErrContextNotFound;
// absence is a normal terminal state for pollers.
func (m *Manager) GetPauseContextDetail(ctx context.Context, workflowID, executionID, contextID string) (*ContextDetail, error) {
	point, paused, err := m.loadContext(ctx, workflowID, executionID, contextID)
	if err != nil {
		return nil, err
	}

	// Soft expiry: the rows still exist but the read boundary answers as if
	// they were gone.
	if paused.Expired(time.Now().UTC()) {
		return nil, ErrContextNotFound
	}

	entries, err := m.store.ResumeEntries(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume entries: %w", err)
	}

	detail := &ContextDetail{
		Execution: paused,
		Point:     point,
		Entries:   entries,
	}

	for _, entry := range entries {
		if entry.Status == models.QueueEntryStatusClaimed {
			detail.ActiveEntry = entry

			return detail, nil
		}
	}

	for _, entry := range entries {
		if entry.Status == models.QueueEntryStatusQueued {
			detail.ActiveEntry = entry

			position, err := m.store.QueuePosition(ctx, contextID, entry.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to read queue position: %w", err)
			}

			detail.QueuePosition = position

			break
		}
	}

	return detail, nil
}

// Receipt is the immediate answer to a resume request; the actual resume
// happens later in the consumer.
type Receipt struct {
	Status        string `json:"status"`
	EntryID       string `json:"entry_id"`
	QueuePosition int    `json:"queue_position,omitempty"`
}

// RequestResume validates the pause point, appends a queued entry to its
// resume queue and publishes ResumeRequested to wake the consumer. It never
// claims; the at-most-one-claimed guarantee lives in the repository.
func (m *Manager) RequestResume(ctx context.Context, workflowID, executionID, contextID string, resumeInput map[string]any) (*Receipt, error) {
	point, paused, err := m.loadContext(ctx, workflowID, executionID, contextID)
	if err != nil {
		return nil, err
	}

	if point.ResumeStatus.IsTerminal() {
		return nil, fmt.Errorf("pause point %s is %s: %w", contextID, point.ResumeStatus, ErrAlreadyResolved)
	}

	if paused.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrExpired)
	}

	entry := &models.ResumeQueueEntry{
		ID:          uuid.New().String(),
		ContextID:   contextID,
		Status:      models.QueueEntryStatusQueued,
		ResumeInput: resumeInput,
		QueuedAt:    time.Now().UTC(),
	}

	if err := m.store.EnqueueResume(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue resume: %w", err)
	}

	receipt := &Receipt{Status: StatusQueued, EntryID: entry.ID}

	if point.ResumeStatus == models.ResumeStatusResuming {
		// Another attempt is already being replayed; this one waits its
		// turn behind it.
		receipt.Status = StatusResuming
	} else if err := m.store.UpdatePausePointStatus(ctx, contextID, models.ResumeStatusQueued); err != nil {
		return nil, fmt.Errorf("failed to mark pause point queued: %w", err)
	}

	position, err := m.store.QueuePosition(ctx, contextID, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue position: %w", err)
	}

	receipt.QueuePosition = position

	m.logger.InfoContext(ctx, "Resume requested",
		"workflow_id", workflowID,
		"execution_id", executionID,
		"context_id", contextID,
		"entry_id", entry.ID,
		"queue_position", position,
	)

	m.publish(ctx, workflowID, events.ResumeRequested{
		BaseEvent:    events.NewBaseEvent(events.ResumeRequestedEvent, workflowID),
		ContextID:    contextID,
		QueueEntryID: entry.ID,
	})

	return receipt, nil
}

// loadContext fetches the pause point and its execution, mapping missing
// rows and identifier mismatches to ErrContextNotFound. Expiry is checked by
// the callers because lookups and resume requests answer it differently.
func (m *Manager) loadContext(ctx context.Context, workflowID, executionID, contextID string) (*models.PausePoint, *models.PausedExecution, error) {
	point, err := m.store.PausePoint(ctx, contextID)
	if err != nil {
		if errors.Is(err, persistence.ErrPausePointNotFound) {
			return nil, nil, ErrContextNotFound
		}

		return nil, nil, fmt.Errorf("failed to load pause point: %w", err)
	}

	if point.WorkflowID != workflowID || point.ExecutionID != executionID {
		return nil, nil, ErrContextNotFound
	}

	paused, err := m.store.PausedExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, persistence.ErrPausedExecutionNotFound) {
			return nil, nil, ErrContextNotFound
		}

		return nil, nil, fmt.Errorf("failed to load paused execution: %w", err)
	}

	return point, paused, nil
}

func (m *Manager) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, workflowID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"workflow_id", workflowID,
			"error", err,
		)
	}
}

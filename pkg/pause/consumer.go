package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
	"github.com/karzal/wove/pkg/workflow"
)

// defaultPollInterval is the floor for Run's poll tick; a non-positive
// interval would panic time.NewTicker.
const defaultPollInterval = 30 * time.Second

// Consumer is the single claimer of the resume queue. It wakes on
// ResumeRequested events and on a periodic poll tick, claims at most one
// entry per pause point, rebuilds the execution context from storage and
// re-enters the executor under a new execution id.
type Consumer struct {
	store     persistence.Persistence
	manager   *Manager
	executor  *workflow.Executor
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	// secrets are process-level values overlaid on workflow variables when
	// the resolution environment is rebuilt for a resumed run.
	secrets map[string]string
}

func NewConsumer(store persistence.Persistence, manager *Manager, executor *workflow.Executor, publisher eventbus.EventPublisher, logger *slog.Logger, secrets map[string]string) *Consumer {
	return &Consumer{
		store:     store,
		manager:   manager,
		executor:  executor,
		publisher: publisher,
		logger:    logger.With("module", "resume_consumer"),
		secrets:   secrets,
	}
}

// HandleResumeRequested is the event bus entry point.
func (c *Consumer) HandleResumeRequested(ctx context.Context, event any) error {
	req, ok := event.(*events.ResumeRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	// A failed resume is terminal for its pause point; returning the error
	// here would make the bus redeliver and retry it.
	if err := c.ProcessResume(ctx, req.ContextID); err != nil {
		c.logger.ErrorContext(ctx, "Resume processing failed",
			"context_id", req.ContextID,
			"error", err,
		)
	}

	return nil
}

// Run polls queued pause points until the context is cancelled. The poll
// backs up the event path: a resume queued while the consumer was down is
// picked up on the next tick.
func (c *Consumer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			points, err := c.store.PausePointsByStatus(ctx, models.ResumeStatusQueued)
			if err != nil {
				c.logger.ErrorContext(ctx, "Failed to list queued pause points", "error", err)

				continue
			}

			for _, point := range points {
				if err := c.ProcessResume(ctx, point.ContextID); err != nil {
					c.logger.ErrorContext(ctx, "Resume processing failed",
						"context_id", point.ContextID,
						"error", err,
					)
				}
			}
		}
	}
}

// ProcessResume claims the next entry for a pause point and replays the run.
// A pause point that is empty or already being resumed is not an error; the
// call simply yields.
func (c *Consumer) ProcessResume(ctx context.Context, contextID string) error {
	entry, err := c.store.ClaimResume(ctx, contextID)
	if err != nil {
		if errors.Is(err, persistence.ErrNoQueuedResume) || errors.Is(err, persistence.ErrResumeAlreadyClaimed) {
			return nil
		}

		return fmt.Errorf("failed to claim resume entry: %w", err)
	}

	logger := c.logger.With("context_id", contextID, "entry_id", entry.ID)
	logger.InfoContext(ctx, "Claimed resume entry")

	point, paused, wf, err := c.loadResumeState(ctx, contextID)
	if err != nil {
		return c.failResume(ctx, entry, point, paused, err)
	}

	if err := c.markResuming(ctx, point, paused); err != nil {
		return c.failResume(ctx, entry, point, paused, err)
	}

	execCtx := paused.State
	previousExecutionID := execCtx.ExecutionID
	execCtx.ExecutionID = workflow.GenerateExecutionID()

	// Environment values are never serialized with the context; rebuild
	// them from the workflow and the worker's own secrets.
	execCtx.EnvironmentVariables = workflow.WorkflowEnv(wf, c.secrets)

	output, err := mergedOutput(point.Payload, entry.ResumeInput)
	if err != nil {
		return c.failResume(ctx, entry, point, paused, err)
	}

	result, err := c.executor.Resume(ctx, wf, execCtx, point.TriggerBlockID, output)
	if err != nil {
		return c.failResume(ctx, entry, point, paused, err)
	}

	if err := c.store.CompleteResume(ctx, entry.ID, execCtx.ExecutionID); err != nil {
		return fmt.Errorf("failed to complete resume entry: %w", err)
	}

	if err := c.store.UpdatePausePointStatus(ctx, contextID, models.ResumeStatusResumed); err != nil {
		return fmt.Errorf("failed to mark pause point resumed: %w", err)
	}

	paused.Status = models.PauseStatusResumed
	paused.ResumedCount++
	paused.State = execCtx

	if err := c.store.SavePausedExecution(ctx, paused); err != nil {
		return fmt.Errorf("failed to save resumed execution: %w", err)
	}

	logger.InfoContext(ctx, "Resume completed",
		"previous_execution_id", previousExecutionID,
		"new_execution_id", execCtx.ExecutionID,
		"run_status", result.Status,
	)

	c.publish(ctx, wf.ID, events.ExecutionResumed{
		BaseEvent:           events.NewBaseEvent(events.ExecutionResumedEvent, wf.ID),
		ContextID:           contextID,
		PreviousExecutionID: previousExecutionID,
		NewExecutionID:      execCtx.ExecutionID,
	})

	// The resumed sub-run may itself suspend at another trigger block.
	if result.Status == workflow.RunPaused {
		return c.manager.RecordPause(ctx, wf, result.Suspension, result.Context)
	}

	return nil
}

// loadResumeState gathers everything the replay needs. Partial results are
// returned even on error so the failure path can mark what exists.
func (c *Consumer) loadResumeState(ctx context.Context, contextID string) (*models.PausePoint, *models.PausedExecution, *models.Workflow, error) {
	point, err := c.store.PausePoint(ctx, contextID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load pause point: %w", err)
	}

	paused, err := c.store.PausedExecution(ctx, point.ExecutionID)
	if err != nil {
		return point, nil, nil, fmt.Errorf("failed to load paused execution: %w", err)
	}

	if paused.State == nil {
		return point, paused, nil, fmt.Errorf("paused execution %s has no persisted state", paused.ExecutionID)
	}

	wf, err := c.store.WorkflowByID(ctx, point.WorkflowID)
	if err != nil {
		return point, paused, nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	return point, paused, wf, nil
}

func (c *Consumer) markResuming(ctx context.Context, point *models.PausePoint, paused *models.PausedExecution) error {
	if err := c.store.UpdatePausePointStatus(ctx, point.ContextID, models.ResumeStatusResuming); err != nil {
		return fmt.Errorf("failed to mark pause point resuming: %w", err)
	}

	paused.Status = models.PauseStatusResuming

	if err := c.store.SavePausedExecution(ctx, paused); err != nil {
		return fmt.Errorf("failed to mark execution resuming: %w", err)
	}

	return nil
}

// failResume settles a claimed entry as failed. Failure is terminal for the
// pause point; no retry happens here.
func (c *Consumer) failResume(ctx context.Context, entry *models.ResumeQueueEntry, point *models.PausePoint, paused *models.PausedExecution, cause error) error {
	c.logger.ErrorContext(ctx, "Resume failed",
		"context_id", entry.ContextID,
		"entry_id", entry.ID,
		"error", cause,
	)

	if err := c.store.FailResume(ctx, entry.ID, cause.Error()); err != nil {
		c.logger.ErrorContext(ctx, "Failed to settle resume entry", "entry_id", entry.ID, "error", err)
	}

	if point != nil {
		if err := c.store.UpdatePausePointStatus(ctx, point.ContextID, models.ResumeStatusFailed); err != nil {
			c.logger.ErrorContext(ctx, "Failed to settle pause point", "context_id", point.ContextID, "error", err)
		}
	}

	if paused != nil {
		paused.Status = models.PauseStatusFailed
		if err := c.store.SavePausedExecution(ctx, paused); err != nil {
			c.logger.ErrorContext(ctx, "Failed to settle paused execution", "execution_id", paused.ExecutionID, "error", err)
		}

		c.publish(ctx, paused.WorkflowID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, paused.WorkflowID),
			ExecutionID: paused.ExecutionID,
			Error:       cause.Error(),
		})
	}

	return cause
}

// mergedOutput overlays the caller-supplied resume input on the suspension
// payload; on key conflicts the resume input wins.
func mergedOutput(payload, resumeInput map[string]any) (map[string]any, error) {
	output := make(map[string]any, len(payload)+len(resumeInput))
	for key, value := range payload {
		output[key] = value
	}

	if len(resumeInput) == 0 {
		return output, nil
	}

	if err := mergo.Merge(&output, resumeInput, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge resume input: %w", err)
	}

	return output, nil
}

func (c *Consumer) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, workflowID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"workflow_id", workflowID,
			"error", err,
		)
	}
}

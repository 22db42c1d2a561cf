// Package persistence provides the storage abstraction for workflows and
// paused executions.
package persistence

import (
	"context"
	"time"

	"github.com/karzal/wove/pkg/models"
)

// Persistence is the full storage surface the services depend on.
type Persistence interface {
	WorkflowRepository
	PauseRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// PauseRepository stores paused executions, their pause points and the
// durable resume queue.
type PauseRepository interface {
	SavePausedExecution(ctx context.Context, paused *models.PausedExecution) error
	PausedExecution(ctx context.Context, executionID string) (*models.PausedExecution, error)
	ExpiredPausedExecutions(ctx context.Context, now time.Time) ([]*models.PausedExecution, error)

	SavePausePoint(ctx context.Context, point *models.PausePoint) error
	PausePoint(ctx context.Context, contextID string) (*models.PausePoint, error)
	PausePointsByExecution(ctx context.Context, executionID string) ([]*models.PausePoint, error)
	PausePointsByStatus(ctx context.Context, status models.ResumeStatus) ([]*models.PausePoint, error)
	UpdatePausePointStatus(ctx context.Context, contextID string, status models.ResumeStatus) error

	EnqueueResume(ctx context.Context, entry *models.ResumeQueueEntry) error

	// ResumeEntries returns every queue entry for a pause point, oldest
	// first.
	ResumeEntries(ctx context.Context, contextID string) ([]*models.ResumeQueueEntry, error)

	// ClaimResume atomically claims the oldest queued entry for a pause
	// point. It returns ErrResumeAlreadyClaimed while another entry for the
	// same pause point is claimed, and ErrNoQueuedResume when the queue for
	// that pause point is empty.
	ClaimResume(ctx context.Context, contextID string) (*models.ResumeQueueEntry, error)

	CompleteResume(ctx context.Context, entryID string, newExecutionID string) error
	FailResume(ctx context.Context, entryID string, reason string) error

	// QueuePosition returns the 1-based position of an entry among the
	// still-queued entries for its pause point.
	QueuePosition(ctx context.Context, contextID string, entryID string) (int, error)
}

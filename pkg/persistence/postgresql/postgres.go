// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
	"github.com/karzal/wove/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	pauseRepo    *PauseRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects, runs migrations and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		pauseRepo:    NewPauseRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) SavePausedExecution(ctx context.Context, paused *models.PausedExecution) error {
	return p.pauseRepo.SavePausedExecution(ctx, paused)
}

func (p *Persistence) PausedExecution(ctx context.Context, executionID string) (*models.PausedExecution, error) {
	return p.pauseRepo.PausedExecution(ctx, executionID)
}

func (p *Persistence) ExpiredPausedExecutions(ctx context.Context, now time.Time) ([]*models.PausedExecution, error) {
	return p.pauseRepo.ExpiredPausedExecutions(ctx, now)
}

func (p *Persistence) SavePausePoint(ctx context.Context, point *models.PausePoint) error {
	return p.pauseRepo.SavePausePoint(ctx, point)
}

func (p *Persistence) PausePoint(ctx context.Context, contextID string) (*models.PausePoint, error) {
	return p.pauseRepo.PausePoint(ctx, contextID)
}

func (p *Persistence) PausePointsByExecution(ctx context.Context, executionID string) ([]*models.PausePoint, error) {
	return p.pauseRepo.PausePointsByExecution(ctx, executionID)
}

func (p *Persistence) PausePointsByStatus(ctx context.Context, status models.ResumeStatus) ([]*models.PausePoint, error) {
	return p.pauseRepo.PausePointsByStatus(ctx, status)
}

func (p *Persistence) UpdatePausePointStatus(ctx context.Context, contextID string, status models.ResumeStatus) error {
	return p.pauseRepo.UpdatePausePointStatus(ctx, contextID, status)
}

func (p *Persistence) EnqueueResume(ctx context.Context, entry *models.ResumeQueueEntry) error {
	return p.pauseRepo.EnqueueResume(ctx, entry)
}

func (p *Persistence) ResumeEntries(ctx context.Context, contextID string) ([]*models.ResumeQueueEntry, error) {
	return p.pauseRepo.ResumeEntries(ctx, contextID)
}

func (p *Persistence) ClaimResume(ctx context.Context, contextID string) (*models.ResumeQueueEntry, error) {
	return p.pauseRepo.ClaimResume(ctx, contextID)
}

func (p *Persistence) CompleteResume(ctx context.Context, entryID string, newExecutionID string) error {
	return p.pauseRepo.CompleteResume(ctx, entryID, newExecutionID)
}

func (p *Persistence) FailResume(ctx context.Context, entryID string, reason string) error {
	return p.pauseRepo.FailResume(ctx, entryID, reason)
}

func (p *Persistence) QueuePosition(ctx context.Context, contextID string, entryID string) (int, error) {
	return p.pauseRepo.QueuePosition(ctx, contextID, entryID)
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
	"github.com/lib/pq"
)

// PauseRepository handles paused executions, pause points and the resume
// queue. The one-claimed-entry-per-pause-point invariant is enforced by a
// partial unique index, so concurrent claimers cannot both win.
type PauseRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPauseRepository(db *sql.DB, logger *slog.Logger) *PauseRepository {
	return &PauseRepository{db: db, logger: logger}
}

func (r *PauseRepository) SavePausedExecution(ctx context.Context, paused *models.PausedExecution) error {
	now := time.Now().UTC()
	if paused.CreatedAt.IsZero() {
		paused.CreatedAt = now
	}

	paused.UpdatedAt = now

	stateJSON, err := json.Marshal(paused.State)
	if err != nil {
		return &persistence.PauseError{Op: "SavePausedExecution", ExecutionID: paused.ExecutionID, Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	query := `
		INSERT INTO paused_executions (execution_id, workflow_id, status, total_pause_count, resumed_count, state, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_pause_count = EXCLUDED.total_pause_count,
			resumed_count = EXCLUDED.resumed_count,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = r.db.ExecContext(ctx, query,
		paused.ExecutionID,
		paused.WorkflowID,
		paused.Status,
		paused.TotalPauseCount,
		paused.ResumedCount,
		stateJSON,
		paused.CreatedAt,
		paused.UpdatedAt,
		paused.ExpiresAt,
	)
	if err != nil {
		return &persistence.PauseError{Op: "SavePausedExecution", ExecutionID: paused.ExecutionID, Err: err}
	}

	return nil
}

func (r *PauseRepository) PausedExecution(ctx context.Context, executionID string) (*models.PausedExecution, error) {
	query := `
		SELECT execution_id, workflow_id, status, total_pause_count, resumed_count, state, created_at, updated_at, expires_at
		FROM paused_executions
		WHERE execution_id = $1
	`

	paused, err := scanPausedExecution(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.PauseError{Op: "PausedExecution", ExecutionID: executionID, Err: persistence.ErrPausedExecutionNotFound}
		}

		return nil, &persistence.PauseError{Op: "PausedExecution", ExecutionID: executionID, Err: err}
	}

	return paused, nil
}

func (r *PauseRepository) ExpiredPausedExecutions(ctx context.Context, now time.Time) ([]*models.PausedExecution, error) {
	query := `
		SELECT execution_id, workflow_id, status, total_pause_count, resumed_count, state, created_at, updated_at, expires_at
		FROM paused_executions
		WHERE status = 'paused' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired paused executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var expired []*models.PausedExecution

	for rows.Next() {
		paused, err := scanPausedExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paused execution: %w", err)
		}

		expired = append(expired, paused)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paused executions: %w", err)
	}

	return expired, nil
}

func (r *PauseRepository) SavePausePoint(ctx context.Context, point *models.PausePoint) error {
	now := time.Now().UTC()
	if point.CreatedAt.IsZero() {
		point.CreatedAt = now
	}

	point.UpdatedAt = now

	payloadJSON, err := json.Marshal(point.Payload)
	if err != nil {
		return persistence.NewPauseError("SavePausePoint", point.ContextID, fmt.Errorf("failed to marshal payload: %w", err))
	}

	query := `
		INSERT INTO pause_points (context_id, workflow_id, execution_id, trigger_block_id, resume_status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (context_id) DO UPDATE SET
			resume_status = EXCLUDED.resume_status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		point.ContextID,
		point.WorkflowID,
		point.ExecutionID,
		point.TriggerBlockID,
		point.ResumeStatus,
		payloadJSON,
		point.CreatedAt,
		point.UpdatedAt,
	)
	if err != nil {
		return persistence.NewPauseError("SavePausePoint", point.ContextID, err)
	}

	return nil
}

func (r *PauseRepository) PausePoint(ctx context.Context, contextID string) (*models.PausePoint, error) {
	query := `
		SELECT context_id, workflow_id, execution_id, trigger_block_id, resume_status, payload, created_at, updated_at
		FROM pause_points
		WHERE context_id = $1
	`

	point, err := scanPausePoint(r.db.QueryRowContext(ctx, query, contextID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewPauseError("PausePoint", contextID, persistence.ErrPausePointNotFound)
		}

		return nil, persistence.NewPauseError("PausePoint", contextID, err)
	}

	return point, nil
}

func (r *PauseRepository) PausePointsByExecution(ctx context.Context, executionID string) ([]*models.PausePoint, error) {
	query := `
		SELECT context_id, workflow_id, execution_id, trigger_block_id, resume_status, payload, created_at, updated_at
		FROM pause_points
		WHERE execution_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pause points: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var points []*models.PausePoint

	for rows.Next() {
		point, err := scanPausePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pause point: %w", err)
		}

		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pause points: %w", err)
	}

	return points, nil
}

func (r *PauseRepository) PausePointsByStatus(ctx context.Context, status models.ResumeStatus) ([]*models.PausePoint, error) {
	query := `
		SELECT context_id, workflow_id, execution_id, trigger_block_id, resume_status, payload, created_at, updated_at
		FROM pause_points
		WHERE resume_status = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query pause points: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var points []*models.PausePoint

	for rows.Next() {
		point, err := scanPausePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pause point: %w", err)
		}

		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pause points: %w", err)
	}

	return points, nil
}

func (r *PauseRepository) UpdatePausePointStatus(ctx context.Context, contextID string, status models.ResumeStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE pause_points SET resume_status = $1, updated_at = $2 WHERE context_id = $3",
		status, time.Now().UTC(), contextID,
	)
	if err != nil {
		return persistence.NewPauseError("UpdatePausePointStatus", contextID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewPauseError("UpdatePausePointStatus", contextID, err)
	}

	if affected == 0 {
		return persistence.NewPauseError("UpdatePausePointStatus", contextID, persistence.ErrPausePointNotFound)
	}

	return nil
}

func (r *PauseRepository) EnqueueResume(ctx context.Context, entry *models.ResumeQueueEntry) error {
	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = time.Now().UTC()
	}

	if entry.Status == "" {
		entry.Status = models.QueueEntryStatusQueued
	}

	resumeInputJSON, err := json.Marshal(entry.ResumeInput)
	if err != nil {
		return persistence.NewPauseError("EnqueueResume", entry.ContextID, fmt.Errorf("failed to marshal resume input: %w", err))
	}

	query := `
		INSERT INTO resume_queue (id, context_id, status, resume_input, queued_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, entry.ID, entry.ContextID, entry.Status, resumeInputJSON, entry.QueuedAt)
	if err != nil {
		return persistence.NewPauseError("EnqueueResume", entry.ContextID, err)
	}

	return nil
}

func (r *PauseRepository) ResumeEntries(ctx context.Context, contextID string) ([]*models.ResumeQueueEntry, error) {
	query := `
		SELECT id, context_id, status, resume_input, new_execution_id, failure_reason, queued_at, claimed_at, completed_at
		FROM resume_queue
		WHERE context_id = $1
		ORDER BY queued_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, contextID)
	if err != nil {
		return nil, persistence.NewPauseError("ResumeEntries", contextID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var entries []*models.ResumeQueueEntry

	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, persistence.NewPauseError("ResumeEntries", contextID, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewPauseError("ResumeEntries", contextID, err)
	}

	return entries, nil
}

// ClaimResume atomically claims the oldest queued entry for a pause point.
// The NOT EXISTS guard refuses the claim while another entry is held, and
// the partial unique index backs that up under concurrency: a second
// transaction racing past the guard fails with a unique violation.
func (r *PauseRepository) ClaimResume(ctx context.Context, contextID string) (*models.ResumeQueueEntry, error) {
	query := `
		UPDATE resume_queue
		SET status = 'claimed', claimed_at = $2
		WHERE id = (
			SELECT id
			FROM resume_queue
			WHERE context_id = $1 AND status = 'queued'
			ORDER BY queued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND NOT EXISTS (
			SELECT 1 FROM resume_queue WHERE context_id = $1 AND status = 'claimed'
		)
		RETURNING id, context_id, status, resume_input, new_execution_id, failure_reason, queued_at, claimed_at, completed_at
	`

	entry, err := scanQueueEntry(r.db.QueryRowContext(ctx, query, contextID, time.Now().UTC()))
	if err == nil {
		return entry, nil
	}

	if isUniqueViolation(err) {
		return nil, persistence.NewPauseError("ClaimResume", contextID, persistence.ErrResumeAlreadyClaimed)
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewPauseError("ClaimResume", contextID, err)
	}

	// Nothing claimed: distinguish a held pause point from an empty queue.
	var claimed int

	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM resume_queue WHERE context_id = $1 AND status = 'claimed'",
		contextID,
	).Scan(&claimed)
	if err != nil {
		return nil, persistence.NewPauseError("ClaimResume", contextID, err)
	}

	if claimed > 0 {
		return nil, persistence.NewPauseError("ClaimResume", contextID, persistence.ErrResumeAlreadyClaimed)
	}

	return nil, persistence.NewPauseError("ClaimResume", contextID, persistence.ErrNoQueuedResume)
}

func (r *PauseRepository) CompleteResume(ctx context.Context, entryID string, newExecutionID string) error {
	return r.finishEntry(ctx, entryID,
		"UPDATE resume_queue SET status = 'completed', new_execution_id = $2, completed_at = $3 WHERE id = $1 AND status = 'claimed'",
		newExecutionID,
	)
}

func (r *PauseRepository) FailResume(ctx context.Context, entryID string, reason string) error {
	return r.finishEntry(ctx, entryID,
		"UPDATE resume_queue SET status = 'failed', failure_reason = $2, completed_at = $3 WHERE id = $1 AND status = 'claimed'",
		reason,
	)
}

func (r *PauseRepository) finishEntry(ctx context.Context, entryID, query, detail string) error {
	result, err := r.db.ExecContext(ctx, query, entryID, detail, time.Now().UTC())
	if err != nil {
		return persistence.NewPauseError("FinishResume", entryID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewPauseError("FinishResume", entryID, err)
	}

	if affected == 0 {
		return persistence.NewPauseError("FinishResume", entryID, persistence.ErrQueueEntryNotFound)
	}

	return nil
}

func (r *PauseRepository) QueuePosition(ctx context.Context, contextID string, entryID string) (int, error) {
	query := `
		SELECT position FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY queued_at, id) AS position
			FROM resume_queue
			WHERE context_id = $1 AND status = 'queued'
		) ranked
		WHERE id = $2
	`

	var position int

	err := r.db.QueryRowContext(ctx, query, contextID, entryID).Scan(&position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, persistence.NewPauseError("QueuePosition", contextID, persistence.ErrQueueEntryNotFound)
		}

		return 0, persistence.NewPauseError("QueuePosition", contextID, err)
	}

	return position, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

func scanPausedExecution(row rowScanner) (*models.PausedExecution, error) {
	var (
		paused    models.PausedExecution
		stateJSON []byte
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&paused.ExecutionID,
		&paused.WorkflowID,
		&paused.Status,
		&paused.TotalPauseCount,
		&paused.ResumedCount,
		&stateJSON,
		&paused.CreatedAt,
		&paused.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stateJSON, &paused.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if expiresAt.Valid {
		paused.ExpiresAt = &expiresAt.Time
	}

	return &paused, nil
}

func scanPausePoint(row rowScanner) (*models.PausePoint, error) {
	var (
		point       models.PausePoint
		payloadJSON []byte
	)

	err := row.Scan(
		&point.ContextID,
		&point.WorkflowID,
		&point.ExecutionID,
		&point.TriggerBlockID,
		&point.ResumeStatus,
		&payloadJSON,
		&point.CreatedAt,
		&point.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalNullable(payloadJSON, &point.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &point, nil
}

func scanQueueEntry(row rowScanner) (*models.ResumeQueueEntry, error) {
	var (
		entry           models.ResumeQueueEntry
		resumeInputJSON []byte
		newExecutionID  sql.NullString
		failureReason   sql.NullString
		claimedAt       sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.ContextID,
		&entry.Status,
		&resumeInputJSON,
		&newExecutionID,
		&failureReason,
		&entry.QueuedAt,
		&claimedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalNullable(resumeInputJSON, &entry.ResumeInput); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resume input: %w", err)
	}

	if newExecutionID.Valid {
		entry.NewExecutionID = newExecutionID.String
	}

	if failureReason.Valid {
		entry.FailureReason = failureReason.String
	}

	if claimedAt.Valid {
		entry.ClaimedAt = &claimedAt.Time
	}

	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}

	return &entry, nil
}

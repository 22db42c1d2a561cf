package pause

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
)

// Reaper is an advisory background sweep: expiry is enforced at the read and
// resume boundaries regardless, the reaper only settles long-expired rows so
// they stop accumulating in the paused state.
type Reaper struct {
	store  persistence.PauseRepository
	cron   *cron.Cron
	logger *slog.Logger
}

func NewReaper(store persistence.PauseRepository, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:  store,
		logger: logger.With("module", "pause_reaper"),
	}
}

// Start schedules the sweep with a cron expression like "@every 10m".
func (r *Reaper) Start(schedule string) error {
	r.cron = cron.New()

	_, err := r.cron.AddFunc(schedule, func() {
		if err := r.Sweep(context.Background()); err != nil {
			r.logger.Error("Pause sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}

	r.cron.Start()

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep marks every expired paused execution failed, along with its
// non-terminal pause points.
func (r *Reaper) Sweep(ctx context.Context) error {
	expired, err := r.store.ExpiredPausedExecutions(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to list expired executions: %w", err)
	}

	for _, paused := range expired {
		r.logger.InfoContext(ctx, "Expiring paused execution",
			"workflow_id", paused.WorkflowID,
			"execution_id", paused.ExecutionID,
			"expires_at", paused.ExpiresAt,
		)

		paused.Status = models.PauseStatusFailed

		if err := r.store.SavePausedExecution(ctx, paused); err != nil {
			return fmt.Errorf("failed to expire execution %s: %w", paused.ExecutionID, err)
		}

		points, err := r.store.PausePointsByExecution(ctx, paused.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to list pause points for %s: %w", paused.ExecutionID, err)
		}

		for _, point := range points {
			if point.ResumeStatus.IsTerminal() {
				continue
			}

			if err := r.store.UpdatePausePointStatus(ctx, point.ContextID, models.ResumeStatusFailed); err != nil {
				return fmt.Errorf("failed to expire pause point %s: %w", point.ContextID, err)
			}
		}
	}

	return nil
}

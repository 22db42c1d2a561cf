package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
)

func (fp *Persistence) SavePausedExecution(_ context.Context, paused *models.PausedExecution) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if paused.CreatedAt.IsZero() {
		paused.CreatedAt = now
	}

	paused.UpdatedAt = now

	if err := writeDocument(fp.path(pausedExecutionsDir, paused.ExecutionID), paused); err != nil {
		return &persistence.PauseError{Op: "SavePausedExecution", ExecutionID: paused.ExecutionID, Err: err}
	}

	return nil
}

func (fp *Persistence) PausedExecution(_ context.Context, executionID string) (*models.PausedExecution, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var paused models.PausedExecution

	err := readDocument(fp.path(pausedExecutionsDir, executionID), &paused)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &persistence.PauseError{Op: "PausedExecution", ExecutionID: executionID, Err: persistence.ErrPausedExecutionNotFound}
		}

		return nil, &persistence.PauseError{Op: "PausedExecution", ExecutionID: executionID, Err: err}
	}

	return &paused, nil
}

func (fp *Persistence) ExpiredPausedExecutions(_ context.Context, now time.Time) ([]*models.PausedExecution, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var expired []*models.PausedExecution

	err := fp.forEachDocument(pausedExecutionsDir, func(path string) error {
		var paused models.PausedExecution
		if err := readDocument(path, &paused); err != nil {
			return err
		}

		if paused.Status == models.PauseStatusPaused && paused.Expired(now) {
			expired = append(expired, &paused)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}

func (fp *Persistence) SavePausePoint(_ context.Context, point *models.PausePoint) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if point.CreatedAt.IsZero() {
		point.CreatedAt = now
	}

	point.UpdatedAt = now

	if err := writeDocument(fp.path(pausePointsDir, point.ContextID), point); err != nil {
		return persistence.NewPauseError("SavePausePoint", point.ContextID, err)
	}

	return nil
}

func (fp *Persistence) PausePoint(_ context.Context, contextID string) (*models.PausePoint, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.pausePointLocked(contextID)
}

func (fp *Persistence) pausePointLocked(contextID string) (*models.PausePoint, error) {
	var point models.PausePoint

	err := readDocument(fp.path(pausePointsDir, contextID), &point)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewPauseError("PausePoint", contextID, persistence.ErrPausePointNotFound)
		}

		return nil, persistence.NewPauseError("PausePoint", contextID, err)
	}

	return &point, nil
}

func (fp *Persistence) PausePointsByExecution(_ context.Context, executionID string) ([]*models.PausePoint, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var points []*models.PausePoint

	err := fp.forEachDocument(pausePointsDir, func(path string) error {
		var point models.PausePoint
		if err := readDocument(path, &point); err != nil {
			return err
		}

		if point.ExecutionID == executionID {
			points = append(points, &point)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt.Before(points[j].CreatedAt)
	})

	return points, nil
}

func (fp *Persistence) PausePointsByStatus(_ context.Context, status models.ResumeStatus) ([]*models.PausePoint, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var points []*models.PausePoint

	err := fp.forEachDocument(pausePointsDir, func(path string) error {
		var point models.PausePoint
		if err := readDocument(path, &point); err != nil {
			return err
		}

		if point.ResumeStatus == status {
			points = append(points, &point)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt.Before(points[j].CreatedAt)
	})

	return points, nil
}

func (fp *Persistence) UpdatePausePointStatus(_ context.Context, contextID string, status models.ResumeStatus) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	point, err := fp.pausePointLocked(contextID)
	if err != nil {
		return err
	}

	point.ResumeStatus = status
	point.UpdatedAt = time.Now().UTC()

	if err := writeDocument(fp.path(pausePointsDir, contextID), point); err != nil {
		return persistence.NewPauseError("UpdatePausePointStatus", contextID, err)
	}

	return nil
}

func (fp *Persistence) EnqueueResume(_ context.Context, entry *models.ResumeQueueEntry) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = time.Now().UTC()
	}

	if entry.Status == "" {
		entry.Status = models.QueueEntryStatusQueued
	}

	if err := writeDocument(fp.path(resumeQueueDir, entry.ID), entry); err != nil {
		return persistence.NewPauseError("EnqueueResume", entry.ContextID, err)
	}

	return nil
}

func (fp *Persistence) ResumeEntries(_ context.Context, contextID string) ([]*models.ResumeQueueEntry, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := fp.queueEntriesLocked(contextID)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].QueuedAt.Equal(entries[j].QueuedAt) {
			return entries[i].ID < entries[j].ID
		}

		return entries[i].QueuedAt.Before(entries[j].QueuedAt)
	})

	return entries, nil
}

// ClaimResume claims the oldest queued entry for a pause point. The mutex
// makes the check-then-claim atomic within this process.
func (fp *Persistence) ClaimResume(_ context.Context, contextID string) (*models.ResumeQueueEntry, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := fp.queueEntriesLocked(contextID)
	if err != nil {
		return nil, err
	}

	var oldest *models.ResumeQueueEntry

	for _, entry := range entries {
		switch entry.Status {
		case models.QueueEntryStatusClaimed:
			return nil, persistence.NewPauseError("ClaimResume", contextID, persistence.ErrResumeAlreadyClaimed)
		case models.QueueEntryStatusQueued:
			if oldest == nil || entry.QueuedAt.Before(oldest.QueuedAt) {
				oldest = entry
			}
		}
	}

	if oldest == nil {
		return nil, persistence.NewPauseError("ClaimResume", contextID, persistence.ErrNoQueuedResume)
	}

	now := time.Now().UTC()
	oldest.Status = models.QueueEntryStatusClaimed
	oldest.ClaimedAt = &now

	if err := writeDocument(fp.path(resumeQueueDir, oldest.ID), oldest); err != nil {
		return nil, persistence.NewPauseError("ClaimResume", contextID, err)
	}

	return oldest, nil
}

func (fp *Persistence) CompleteResume(_ context.Context, entryID string, newExecutionID string) error {
	return fp.finishEntry(entryID, func(entry *models.ResumeQueueEntry) {
		entry.Status = models.QueueEntryStatusCompleted
		entry.NewExecutionID = newExecutionID
	})
}

func (fp *Persistence) FailResume(_ context.Context, entryID string, reason string) error {
	return fp.finishEntry(entryID, func(entry *models.ResumeQueueEntry) {
		entry.Status = models.QueueEntryStatusFailed
		entry.FailureReason = reason
	})
}

func (fp *Persistence) finishEntry(entryID string, mutate func(*models.ResumeQueueEntry)) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var entry models.ResumeQueueEntry

	err := readDocument(fp.path(resumeQueueDir, entryID), &entry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewPauseError("FinishResume", entryID, persistence.ErrQueueEntryNotFound)
		}

		return persistence.NewPauseError("FinishResume", entryID, err)
	}

	mutate(&entry)

	now := time.Now().UTC()
	entry.CompletedAt = &now

	if err := writeDocument(fp.path(resumeQueueDir, entryID), &entry); err != nil {
		return persistence.NewPauseError("FinishResume", entryID, err)
	}

	return nil
}

func (fp *Persistence) QueuePosition(_ context.Context, contextID string, entryID string) (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := fp.queueEntriesLocked(contextID)
	if err != nil {
		return 0, err
	}

	var queued []*models.ResumeQueueEntry

	for _, entry := range entries {
		if entry.Status == models.QueueEntryStatusQueued {
			queued = append(queued, entry)
		}
	}

	sort.Slice(queued, func(i, j int) bool {
		if queued[i].QueuedAt.Equal(queued[j].QueuedAt) {
			return queued[i].ID < queued[j].ID
		}

		return queued[i].QueuedAt.Before(queued[j].QueuedAt)
	})

	for position, entry := range queued {
		if entry.ID == entryID {
			return position + 1, nil
		}
	}

	return 0, persistence.NewPauseError("QueuePosition", contextID, persistence.ErrQueueEntryNotFound)
}

func (fp *Persistence) queueEntriesLocked(contextID string) ([]*models.ResumeQueueEntry, error) {
	var entries []*models.ResumeQueueEntry

	err := fp.forEachDocument(resumeQueueDir, func(path string) error {
		var entry models.ResumeQueueEntry
		if err := readDocument(path, &entry); err != nil {
			return err
		}

		if entry.ContextID == contextID {
			entries = append(entries, &entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

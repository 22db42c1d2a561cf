package pause

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzal/wove/pkg/models"
)

func TestSweepExpiresPausedExecutions(t *testing.T) {
	f := newPauseFixture(t, -time.Minute, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	reaper := NewReaper(f.store, testLogger())
	require.NoError(t, reaper.Sweep(context.Background()))

	paused, err := f.store.PausedExecution(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.PauseStatusFailed, paused.Status)

	point, err := f.store.PausePoint(context.Background(), suspension.ContextID)
	require.NoError(t, err)
	assert.Equal(t, models.ResumeStatusFailed, point.ResumeStatus)
}

func TestSweepLeavesFreshPausesAlone(t *testing.T) {
	f := newPauseFixture(t, time.Hour, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	reaper := NewReaper(f.store, testLogger())
	require.NoError(t, reaper.Sweep(context.Background()))

	paused, err := f.store.PausedExecution(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.PauseStatusPaused, paused.Status)

	point, err := f.store.PausePoint(context.Background(), suspension.ContextID)
	require.NoError(t, err)
	assert.Equal(t, models.ResumeStatusPaused, point.ResumeStatus)
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	f := newPauseFixture(t, 0, false)

	reaper := NewReaper(f.store, testLogger())
	assert.Error(t, reaper.Start("not a schedule"))
}

func TestReaperStartAndStop(t *testing.T) {
	f := newPauseFixture(t, 0, false)

	reaper := NewReaper(f.store, testLogger())
	require.NoError(t, reaper.Start("@every 1h"))
	reaper.Stop()
}

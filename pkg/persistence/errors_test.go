package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowErrorWrapping(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
	assert.True(t, IsWorkflowNotFound(err))
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "wf-1")
}

func TestPauseErrorKeyFormatting(t *testing.T) {
	byContext := NewPauseError("Claim", "ctx-1", ErrResumeAlreadyClaimed)
	assert.Contains(t, byContext.Error(), "context ctx-1")
	assert.True(t, errors.Is(byContext, ErrResumeAlreadyClaimed))

	byExecution := &PauseError{Op: "Get", ExecutionID: "exec-1", Err: ErrPausedExecutionNotFound}
	assert.Contains(t, byExecution.Error(), "exec-1")
	assert.NotContains(t, byExecution.Error(), "context")
}

func TestIsPausePointNotFound(t *testing.T) {
	assert.True(t, IsPausePointNotFound(NewPauseError("Get", "ctx-1", ErrPausePointNotFound)))
	assert.False(t, IsPausePointNotFound(errors.New("other")))
}

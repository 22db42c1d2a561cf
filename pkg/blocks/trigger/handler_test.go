package trigger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/karzal/wove/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerMatches(t *testing.T) {
	h := NewHandler()

	assert.True(t, h.Matches(models.BlockTypeTrigger))
	assert.False(t, h.Matches(models.BlockTypeCondition))
}

func TestExecuteSuspends(t *testing.T) {
	h := NewHandler()
	block := &models.Block{ID: "wait-1", Type: models.BlockTypeTrigger, Enabled: true}
	execCtx := models.NewExecutionContext("wf-1", "exec-1")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	params := map[string]any{"prompt": "approve?"}

	result, err := h.Execute(context.Background(), block, params, execCtx, logger)
	require.NoError(t, err)

	require.NotNil(t, result.Suspension)
	assert.Nil(t, result.Output)
	assert.Equal(t, "wait-1", result.Suspension.TriggerBlockID)
	assert.Equal(t, params, result.Suspension.Payload)
	assert.NotEmpty(t, result.Suspension.ContextID)

	// Each suspension gets a unique context id.
	again, err := h.Execute(context.Background(), block, params, execCtx, logger)
	require.NoError(t, err)
	assert.NotEqual(t, result.Suspension.ContextID, again.Suspension.ContextID)
}

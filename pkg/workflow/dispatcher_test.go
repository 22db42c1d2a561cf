package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatcherBlock(tool string) *models.Block {
	return &models.Block{
		ID:      "block-1",
		Type:    models.BlockTypeTool,
		Enabled: true,
		Config:  models.BlockConfig{Tool: tool},
		Metadata: models.BlockMetadata{
			Name: "First Step",
		},
	}
}

func TestDispatcherInjectsCallContext(t *testing.T) {
	var seen map[string]any

	factory := &stubToolFactory{
		id: "capture",
		fn: func(_ context.Context, params map[string]any) (*models.ToolResult, error) {
			seen = params

			return &models.ToolResult{Success: true, Output: map[string]any{"ok": true}}, nil
		},
	}

	reg := newTestRegistry(t, factory)
	d := NewDispatcher(reg, testLogger())

	execCtx := models.NewExecutionContext("wf-1", "exec-abc12345")
	params := map[string]any{"url": "https://example.com"}

	output, err := d.Execute(context.Background(), dispatcherBlock("capture"), params, execCtx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, output)

	callCtx, ok := seen[protocol.ToolContextKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "wf-1", callCtx["workflow_id"])
	assert.Equal(t, "exec-abc12345", callCtx["execution_id"])
	assert.Equal(t, "block-1", callCtx["block_id"])
	assert.Equal(t, "https://example.com", seen["url"])

	// The caller's params map is never mutated.
	assert.NotContains(t, params, protocol.ToolContextKey)
}

func TestDispatcherToolNotFound(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), testLogger())

	_, err := d.Execute(context.Background(), dispatcherBlock("missing"), nil, models.NewExecutionContext("wf-1", "exec-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "missing", toolErr.ToolID)
	assert.Equal(t, "block-1", toolErr.BlockID)
	assert.Equal(t, "First Step", toolErr.BlockName)
	assert.False(t, toolErr.Timestamp.IsZero())
}

func TestDispatcherEnrichesToolErrors(t *testing.T) {
	underlying := errors.New("connection refused")
	factory := &stubToolFactory{
		id: "flaky",
		fn: func(_ context.Context, _ map[string]any) (*models.ToolResult, error) {
			return nil, underlying
		},
	}

	d := NewDispatcher(newTestRegistry(t, factory), testLogger())

	_, err := d.Execute(context.Background(), dispatcherBlock("flaky"), nil, models.NewExecutionContext("wf-1", "exec-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecutionFailed)
	assert.ErrorIs(t, err, underlying)
}

func TestDispatcherConcatenatesFailureFragments(t *testing.T) {
	factory := &stubToolFactory{
		id: "failing",
		fn: func(_ context.Context, _ map[string]any) (*models.ToolResult, error) {
			return &models.ToolResult{
				Success: false,
				Error:   "request failed",
				Output: map[string]any{
					"error":   "status 502",
					"message": "upstream unavailable",
				},
			}, nil
		},
	}

	d := NewDispatcher(newTestRegistry(t, factory), testLogger())

	_, err := d.Execute(context.Background(), dispatcherBlock("failing"), nil, models.NewExecutionContext("wf-1", "exec-1"))
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "request failed; status 502; upstream unavailable", toolErr.Message)
	assert.Equal(t, "status 502", toolErr.Output["error"])
}

func TestDispatcherFailureWithoutDetails(t *testing.T) {
	factory := &stubToolFactory{
		id: "silent",
		fn: func(_ context.Context, _ map[string]any) (*models.ToolResult, error) {
			return &models.ToolResult{Success: false}, nil
		},
	}

	d := NewDispatcher(newTestRegistry(t, factory), testLogger())

	_, err := d.Execute(context.Background(), dispatcherBlock("silent"), nil, models.NewExecutionContext("wf-1", "exec-1"))
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "tool reported failure without details", toolErr.Message)
}

func TestDispatcherNilResult(t *testing.T) {
	factory := &stubToolFactory{
		id: "void",
		fn: func(_ context.Context, _ map[string]any) (*models.ToolResult, error) {
			return nil, nil
		},
	}

	d := NewDispatcher(newTestRegistry(t, factory), testLogger())

	_, err := d.Execute(context.Background(), dispatcherBlock("void"), nil, models.NewExecutionContext("wf-1", "exec-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecutionFailed)
}

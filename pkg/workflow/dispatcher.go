package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
	"github.com/karzal/wove/pkg/registry"
)

// ToolErrorKind distinguishes dispatcher failures.
type ToolErrorKind string

const (
	ToolNotFound        ToolErrorKind = "tool_not_found"
	ToolExecutionFailed ToolErrorKind = "tool_execution_failed"
)

// ToolError is a dispatcher failure enriched with tool and block identity so
// operator-facing logs always say which call failed. It is never retried by
// the dispatcher.
type ToolError struct {
	Kind      ToolErrorKind
	ToolID    string
	ToolName  string
	BlockID   string
	BlockName string
	Output    map[string]any
	Timestamp time.Time
	Message   string
	Err       error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s (tool %s, block %s)", e.Kind, e.Message, e.ToolID, e.BlockID)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func (e *ToolError) Is(target error) bool {
	other, ok := target.(*ToolError)
	if !ok {
		return false
	}

	return other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrToolNotFound        = &ToolError{Kind: ToolNotFound}
	ErrToolExecutionFailed = &ToolError{Kind: ToolExecutionFailed}
)

// Dispatcher is the fallback execution strategy for blocks without a
// specialized handler: look the tool up by identifier and invoke it
// uniformly.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewDispatcher(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logger:   logger.With("module", "tool_dispatcher"),
	}
}

// Execute invokes the block's tool with the resolved parameters plus an
// injected _context carrying run identity. Tools never receive raw
// environment variables; resolution already inlined whatever was allowed.
func (d *Dispatcher) Execute(ctx context.Context, block *models.Block, params map[string]any, execCtx *models.ExecutionContext) (map[string]any, error) {
	toolID := block.Config.Tool

	tool, err := d.registry.CreateTool(ctx, toolID, params)
	if err != nil {
		if errors.Is(err, registry.ErrToolNotRegistered) {
			return nil, d.newError(ToolNotFound, block, nil, fmt.Sprintf("tool %q is not available", toolID), err)
		}

		return nil, d.newError(ToolExecutionFailed, block, nil, fmt.Sprintf("failed to instantiate tool %q: %v", toolID, err), err)
	}

	callParams := make(map[string]any, len(params)+1)
	for key, value := range params {
		callParams[key] = value
	}

	callParams[protocol.ToolContextKey] = map[string]any{
		"workflow_id":  execCtx.WorkflowID,
		"execution_id": execCtx.ExecutionID,
		"block_id":     block.ID,
	}

	logger := d.logger.With(
		"tool_id", toolID,
		"block_id", block.ID,
		"workflow_id", execCtx.WorkflowID,
		"execution_id", execCtx.ExecutionID,
	)

	result, err := tool.Execute(ctx, callParams, logger)
	if err != nil {
		// Underlying errors may carry no identifying context of their own;
		// always rewrap with tool and block identity.
		return nil, d.newError(ToolExecutionFailed, block, nil, fmt.Sprintf("tool %q errored: %v", toolID, err), err)
	}

	if result == nil {
		return nil, d.newError(ToolExecutionFailed, block, nil, fmt.Sprintf("tool %q returned no result", toolID), nil)
	}

	if !result.Success {
		return nil, d.newError(ToolExecutionFailed, block, result.Output, concatErrorFragments(result), nil)
	}

	return result.Output, nil
}

func (d *Dispatcher) newError(kind ToolErrorKind, block *models.Block, output map[string]any, message string, err error) *ToolError {
	return &ToolError{
		Kind:      kind,
		ToolID:    block.Config.Tool,
		ToolName:  d.registry.ToolName(block.Config.Tool),
		BlockID:   block.ID,
		BlockName: block.Name(),
		Output:    output,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Err:       err,
	}
}

// concatErrorFragments joins every error detail a failed tool result offers.
func concatErrorFragments(result *models.ToolResult) string {
	var fragments []string

	if result.Error != "" {
		fragments = append(fragments, result.Error)
	}

	if result.Output != nil {
		if msg, ok := result.Output["error"].(string); ok && msg != "" {
			fragments = append(fragments, msg)
		}

		if msg, ok := result.Output["message"].(string); ok && msg != "" {
			fragments = append(fragments, msg)
		}
	}

	if len(fragments) == 0 {
		return "tool reported failure without details"
	}

	return strings.Join(fragments, "; ")
}

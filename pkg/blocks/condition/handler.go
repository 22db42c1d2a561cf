// Package condition provides the branching block handler. It evaluates a
// boolean expression and routes execution to the true or false branch.
package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
)

const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

var ErrMissingExpression = errors.New("condition block requires an 'expression' param")

// Handler executes condition blocks. The expression arrives fully resolved:
// references were already rendered as expression-friendly literals, so the
// handler only compiles and evaluates.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Matches(blockType string) bool {
	return blockType == models.BlockTypeCondition
}

func (h *Handler) Execute(_ context.Context, block *models.Block, params map[string]any, _ *models.ExecutionContext, logger *slog.Logger) (*protocol.BlockResult, error) {
	expression, ok := params["expression"].(string)
	if !ok || expression == "" {
		return nil, fmt.Errorf("block %s: %w", block.ID, ErrMissingExpression)
	}

	// Compiled without a typed environment: absent references were rendered
	// as null tokens and must evaluate to nil rather than fail compilation.
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("block %s: failed to compile expression %q: %w", block.ID, expression, err)
	}

	value, err := expr.Run(program, map[string]any{"null": nil})
	if err != nil {
		return nil, fmt.Errorf("block %s: failed to evaluate expression %q: %w", block.ID, expression, err)
	}

	taken := BranchFalse
	if truthy(value) {
		taken = BranchTrue
	}

	logger.Debug("Condition evaluated", "expression", expression, "branch", taken)

	return &protocol.BlockResult{
		Output: map[string]any{
			"result":          taken == BranchTrue,
			"evaluated_value": value,
		},
		BranchTaken: taken,
	}, nil
}

// truthy coerces non-boolean expression results. Numbers are true when
// non-zero, strings and collections when non-empty, nil is false.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return true
	}
}

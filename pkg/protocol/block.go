package protocol

import (
	"context"
	"log/slog"

	"github.com/karzal/wove/pkg/models"
)

// BlockResult is what a block handler produces for one block execution.
// Exactly one of the following holds: the block completed with Output, or it
// requested suspension via Suspension.
type BlockResult struct {
	Output map[string]any

	// Suspension, when non-nil, asks the executor to stop walking and hand
	// the run to the pause manager instead of treating it as complete.
	Suspension *Suspension

	// BranchTaken names the source handle activated by a branching block
	// ("true"/"false" for condition blocks). Empty for non-branching blocks.
	BranchTaken string
}

// Suspension carries what the pause manager needs to persist a pause point.
type Suspension struct {
	// ContextID keys the pause point; generated by the suspending handler.
	ContextID string

	// TriggerBlockID is the block that requested the suspension.
	TriggerBlockID string

	// Payload is the captured request/response data needed to resume.
	Payload map[string]any
}

// BlockHandler executes one block type. Handlers receive resolved parameters;
// they never see raw reference syntax or environment variables.
type BlockHandler interface {
	// Matches reports whether this handler executes the given block type.
	Matches(blockType string) bool

	// Execute runs the block. The execution context is read-only for
	// handlers; only the executor writes results back.
	Execute(ctx context.Context, block *models.Block, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*BlockResult, error)
}

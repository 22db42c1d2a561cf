// Package trigger provides the handler for trigger blocks reached mid-run.
// Entry triggers are seeded with trigger data by the executor; any other
// trigger block encountered during the walk suspends the execution until an
// external event resumes it.
package trigger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
)

// Handler suspends execution at mid-graph trigger blocks.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Matches(blockType string) bool {
	return blockType == models.BlockTypeTrigger
}

// Execute never produces output: it asks the executor to stop and hands the
// pause manager a context id under which the run can later be resumed. The
// resolved params are captured as the pause payload so the resuming side
// knows what the block was waiting with.
func (h *Handler) Execute(_ context.Context, block *models.Block, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*protocol.BlockResult, error) {
	contextID := uuid.New().String()

	logger.Info("Trigger block suspending execution",
		"context_id", contextID,
		"workflow_id", execCtx.WorkflowID,
		"execution_id", execCtx.ExecutionID,
	)

	return &protocol.BlockResult{
		Suspension: &protocol.Suspension{
			ContextID:      contextID,
			TriggerBlockID: block.ID,
			Payload:        params,
		},
	}, nil
}

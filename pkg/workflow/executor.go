package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
	"github.com/karzal/wove/pkg/registry"
	"github.com/karzal/wove/pkg/resolver"
)

// RunStatus is the outcome of one executor entry.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPaused    RunStatus = "paused"
)

// RunResult carries the final execution context and, for paused runs, the
// suspension details the pause manager needs.
type RunResult struct {
	Status     RunStatus
	Suspension *protocol.Suspension
	Context    *models.ExecutionContext
}

// Executor walks a workflow's block graph: it maintains the active execution
// path, resolves each eligible block's inputs, dispatches execution and asks
// the loop manager to advance after every pass. A single run is strictly
// single-threaded; the executor is the sole writer of its ExecutionContext.
type Executor struct {
	registry   *registry.Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry:   reg,
		dispatcher: NewDispatcher(reg, logger),
		logger:     logger.With("module", "workflow_executor"),
	}
}

// Prepare validates the workflow and builds a fresh execution context with
// the entry block's output seeded from the trigger data. The returned
// context is ready for Run.
func (e *Executor) Prepare(wf *models.Workflow, triggerData map[string]any, env map[string]string) (*models.ExecutionContext, error) {
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", wf.ID, err)
	}

	entry := wf.TriggerBlock()
	if entry == nil {
		return nil, fmt.Errorf("workflow %s has no entry block", wf.ID)
	}

	execCtx := models.NewExecutionContext(wf.ID, GenerateExecutionID())
	execCtx.EnvironmentVariables = env

	if triggerData == nil {
		triggerData = make(map[string]any)
	}

	execCtx.Activate(entry.ID)
	execCtx.RecordOutput(entry.ID, triggerData)

	loops := NewLoopManager(wf)
	for _, conn := range wf.OutgoingConnections(entry.ID) {
		if loops.IsFeedbackEdge(conn) {
			continue
		}

		e.activate(wf, loops, conn.Target, execCtx)
	}

	return execCtx, nil
}

// Start begins a fresh run: Prepare followed by the walk, until the graph is
// exhausted or a block suspends.
func (e *Executor) Start(ctx context.Context, wf *models.Workflow, triggerData map[string]any, env map[string]string) (*RunResult, error) {
	execCtx, err := e.Prepare(wf, triggerData, env)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Starting workflow execution",
		"workflow_id", wf.ID,
		"execution_id", execCtx.ExecutionID,
	)

	return e.Run(ctx, wf, execCtx)
}

// Resume continues a run that suspended at blockID. The block's output is
// recorded (resume input already merged by the caller), its downstream is
// put on the active path and the walk re-enters under the context's current
// execution id.
func (e *Executor) Resume(ctx context.Context, wf *models.Workflow, execCtx *models.ExecutionContext, blockID string, output map[string]any) (*RunResult, error) {
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", wf.ID, err)
	}

	block := wf.BlockByID(blockID)
	if block == nil {
		return nil, fmt.Errorf("workflow %s: %w: %s", wf.ID, models.ErrUnknownBlockReference, blockID)
	}

	if output == nil {
		output = make(map[string]any)
	}

	execCtx.RecordOutput(blockID, output)

	loops := NewLoopManager(wf)
	e.activateDownstream(wf, loops, block, &protocol.BlockResult{Output: output}, execCtx)

	e.logger.InfoContext(ctx, "Resuming workflow execution",
		"workflow_id", wf.ID,
		"execution_id", execCtx.ExecutionID,
		"block_id", blockID,
	)

	return e.Run(ctx, wf, execCtx)
}

// Run walks the graph from whatever state the context is in. It serves both
// fresh runs and re-entry after a resume, where the context was rebuilt from
// durable storage.
func (e *Executor) Run(ctx context.Context, wf *models.Workflow, execCtx *models.ExecutionContext) (*RunResult, error) {
	rsv := resolver.New(wf)
	loops := NewLoopManager(wf)

	logger := e.logger.With(
		"workflow_id", wf.ID,
		"execution_id", execCtx.ExecutionID,
	)

	for {
		pass := e.eligibleBlocks(wf, execCtx, loops)
		if len(pass) == 0 {
			loops.Advance(execCtx)

			if len(e.eligibleBlocks(wf, execCtx, loops)) == 0 {
				break
			}

			continue
		}

		for _, block := range pass {
			result, err := e.executeBlock(ctx, rsv, block, execCtx, logger)
			if err != nil {
				return nil, fmt.Errorf("block %s (%s) failed: %w", block.ID, block.Name(), err)
			}

			if result.Suspension != nil {
				logger.InfoContext(ctx, "Block requested suspension",
					"block_id", block.ID,
					"context_id", result.Suspension.ContextID,
				)

				return &RunResult{
					Status:     RunPaused,
					Suspension: result.Suspension,
					Context:    execCtx,
				}, nil
			}

			execCtx.RecordOutput(block.ID, result.Output)
			e.activateDownstream(wf, loops, block, result, execCtx)
		}

		loops.Advance(execCtx)
	}

	logger.InfoContext(ctx, "Workflow execution completed",
		"executed_blocks", len(execCtx.ExecutedBlocks),
	)

	return &RunResult{Status: RunCompleted, Context: execCtx}, nil
}

// eligibleBlocks returns every active, enabled, not-yet-executed block whose
// forward incoming connections are all satisfied.
func (e *Executor) eligibleBlocks(wf *models.Workflow, execCtx *models.ExecutionContext, loops *LoopManager) []*models.Block {
	var eligible []*models.Block

	for _, block := range wf.Blocks {
		if !block.Enabled || !execCtx.IsActive(block.ID) || execCtx.HasExecuted(block.ID) {
			continue
		}

		if e.inputsReady(wf, loops, block, execCtx) {
			eligible = append(eligible, block)
		}
	}

	return eligible
}

// inputsReady checks forward (non-feedback) in-edges. Edges from disabled
// blocks or blocks off the active path count as satisfied-but-absent.
func (e *Executor) inputsReady(wf *models.Workflow, loops *LoopManager, block *models.Block, execCtx *models.ExecutionContext) bool {
	for _, conn := range wf.IncomingConnections(block.ID) {
		if loops.IsFeedbackEdge(conn) {
			continue
		}

		source := wf.BlockByID(conn.Source)
		if source == nil || !source.Enabled {
			continue
		}

		if !execCtx.IsActive(conn.Source) {
			continue
		}

		if !execCtx.HasExecuted(conn.Source) {
			return false
		}
	}

	return true
}

func (e *Executor) executeBlock(ctx context.Context, rsv *resolver.Resolver, block *models.Block, execCtx *models.ExecutionContext, logger *slog.Logger) (*protocol.BlockResult, error) {
	params, err := rsv.Resolve(block, execCtx)
	if err != nil {
		return nil, err
	}

	blockLogger := logger.With("block_id", block.ID, "block_type", block.Type)
	blockLogger.DebugContext(ctx, "Executing block")

	if handler := e.registry.HandlerFor(block.Type); handler != nil {
		return handler.Execute(ctx, block, params, execCtx, blockLogger)
	}

	output, err := e.dispatcher.Execute(ctx, block, params, execCtx)
	if err != nil {
		return nil, err
	}

	return &protocol.BlockResult{Output: output}, nil
}

// activateDownstream extends the active execution path after a block
// completes. Condition blocks activate only the taken branch; targets of the
// untaken branch are explicitly excluded so references to them resolve to
// the empty string. Feedback edges never extend the path; loop re-entry is
// the loop manager's job.
func (e *Executor) activateDownstream(wf *models.Workflow, loops *LoopManager, block *models.Block, result *protocol.BlockResult, execCtx *models.ExecutionContext) {
	for _, conn := range wf.OutgoingConnections(block.ID) {
		if loops.IsFeedbackEdge(conn) {
			continue
		}

		if block.Type == models.BlockTypeCondition {
			if conn.SourceHandle == result.BranchTaken {
				e.activate(wf, loops, conn.Target, execCtx)
			} else {
				execCtx.Deactivate(conn.Target)
			}

			continue
		}

		e.activate(wf, loops, conn.Target, execCtx)
	}
}

// activate puts a block on the active path. Disabled blocks never execute,
// so activation flows through them to their targets; otherwise everything
// behind a disabled block would be stranded.
func (e *Executor) activate(wf *models.Workflow, loops *LoopManager, blockID string, execCtx *models.ExecutionContext) {
	if execCtx.IsActive(blockID) {
		return
	}

	execCtx.Activate(blockID)

	block := wf.BlockByID(blockID)
	if block == nil || block.Enabled {
		return
	}

	for _, conn := range wf.OutgoingConnections(blockID) {
		if loops.IsFeedbackEdge(conn) {
			continue
		}

		e.activate(wf, loops, conn.Target, execCtx)
	}
}

// GenerateExecutionID creates a unique execution identifier.
func GenerateExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}

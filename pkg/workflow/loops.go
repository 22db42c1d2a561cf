package workflow

import (
	"sort"

	"github.com/karzal/wove/pkg/models"
)

// LoopManager tracks per-loop iteration counters, resets loop bodies between
// iterations and classifies feedback edges so the executor never treats a
// loop-closing connection as a forward dependency.
type LoopManager struct {
	workflow *models.Workflow
}

func NewLoopManager(wf *models.Workflow) *LoopManager {
	return &LoopManager{workflow: wf}
}

// Advance is called once per full executor pass. For every loop whose body
// completed the current iteration it increments the counter and, while the
// cap has not been reached, resets the loop's nodes so they run again.
// Counters never exceed the configured iteration cap, and a loop that
// reached its cap is never reset again. Returns whether any loop is
// exhausted.
func (lm *LoopManager) Advance(execCtx *models.ExecutionContext) bool {
	exhausted := false

	for _, loopID := range lm.sortedLoopIDs() {
		loop := lm.workflow.Loops[loopID]

		if execCtx.LoopIterations[loopID] >= loop.Iterations {
			exhausted = true

			continue
		}

		if !lm.iterationComplete(loop, execCtx) {
			// Mid-iteration; nothing to do yet.
			continue
		}

		execCtx.LoopIterations[loopID]++

		if execCtx.LoopIterations[loopID] >= loop.Iterations {
			exhausted = true

			continue
		}

		lm.resetLoop(loop, execCtx)
	}

	return exhausted
}

// CanIterate reports whether any loop could still re-run its body.
func (lm *LoopManager) CanIterate(execCtx *models.ExecutionContext) bool {
	for loopID, loop := range lm.workflow.Loops {
		if execCtx.LoopIterations[loopID] < loop.Iterations {
			return true
		}
	}

	return false
}

// IsFeedbackEdge classifies a connection as loop-closing: both endpoints in
// the same loop, the target preceding the source in the loop's node list,
// and the source being a condition block emitting from a branch handle.
// Arbitrary backward edges without a conditional driver do not qualify, so
// an accidental cycle cannot re-enter a loop body.
func (lm *LoopManager) IsFeedbackEdge(conn *models.Connection) bool {
	if conn.SourceHandle == "" {
		return false
	}

	source := lm.workflow.BlockByID(conn.Source)
	if source == nil || source.Type != models.BlockTypeCondition {
		return false
	}

	for _, loop := range lm.workflow.Loops {
		sourcePos := loop.Position(conn.Source)
		targetPos := loop.Position(conn.Target)

		if sourcePos >= 0 && targetPos >= 0 && targetPos < sourcePos {
			return true
		}
	}

	return false
}

// iterationComplete reports whether every node of the loop finished in the
// current pass.
func (lm *LoopManager) iterationComplete(loop *models.Loop, execCtx *models.ExecutionContext) bool {
	for _, nodeID := range loop.Nodes {
		if !execCtx.HasExecuted(nodeID) {
			return false
		}
	}

	return len(loop.Nodes) > 0
}

// resetLoop clears per-iteration state for every node in the loop and
// re-activates the loop's entry block so the executor has somewhere to
// resume.
func (lm *LoopManager) resetLoop(loop *models.Loop, execCtx *models.ExecutionContext) {
	for _, nodeID := range loop.Nodes {
		execCtx.ResetBlock(nodeID)
	}

	if entry := lm.entryBlock(loop); entry != "" {
		execCtx.Activate(entry)
	}
}

// entryBlock picks the loop node with the fewest incoming connections, ties
// broken by node-list order. A heuristic, not a proof: multi-entry loop
// subgraphs keep the first minimal node.
func (lm *LoopManager) entryBlock(loop *models.Loop) string {
	best := ""
	bestCount := -1

	for _, nodeID := range loop.Nodes {
		count := len(lm.workflow.IncomingConnections(nodeID))
		if bestCount == -1 || count < bestCount {
			best = nodeID
			bestCount = count
		}
	}

	return best
}

// sortedLoopIDs keeps Advance deterministic across runs.
func (lm *LoopManager) sortedLoopIDs() []string {
	ids := make([]string, 0, len(lm.workflow.Loops))
	for id := range lm.workflow.Loops {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

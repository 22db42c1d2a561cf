package models

// BlockState records the output a block produced in the current loop
// iteration.
type BlockState struct {
	Output map[string]any `json:"output"`
}

// ExecutionContext is the mutable state of one workflow run. It is owned
// exclusively by the executor for the run's lifetime; on suspension it is
// serialized to durable storage and later reconstructed in a fresh process,
// so every field must survive a JSON round trip.
type ExecutionContext struct {
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`

	// BlockStates maps block id to the output recorded in the current loop
	// iteration.
	BlockStates map[string]*BlockState `json:"block_states"`

	// ExecutedBlocks is the set of block ids completed in the current pass.
	// Loop nodes are removed again when their loop iterates.
	ExecutedBlocks map[string]bool `json:"executed_blocks"`

	// ActiveExecutionPath is the set of block ids reachable given branch
	// decisions made so far. Blocks outside it are never resolved or
	// executed; references to them resolve to the empty string.
	ActiveExecutionPath map[string]bool `json:"active_execution_path"`

	// LoopIterations maps loop id to completed-iteration count.
	LoopIterations map[string]int `json:"loop_iterations"`

	// EnvironmentVariables are visible only to resolution logic and must
	// never be logged or handed to tools.
	EnvironmentVariables map[string]string `json:"-"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewExecutionContext creates a run context with all tracking maps allocated.
func NewExecutionContext(workflowID, executionID string) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:           workflowID,
		ExecutionID:          executionID,
		BlockStates:          make(map[string]*BlockState),
		ExecutedBlocks:       make(map[string]bool),
		ActiveExecutionPath:  make(map[string]bool),
		LoopIterations:       make(map[string]int),
		EnvironmentVariables: make(map[string]string),
		Metadata:             make(map[string]any),
	}
}

// RecordOutput stores a block's output and marks it executed.
func (ec *ExecutionContext) RecordOutput(blockID string, output map[string]any) {
	if ec.BlockStates == nil {
		ec.BlockStates = make(map[string]*BlockState)
	}

	ec.BlockStates[blockID] = &BlockState{Output: output}
	ec.ExecutedBlocks[blockID] = true
}

// Activate adds a block to the active execution path.
func (ec *ExecutionContext) Activate(blockID string) {
	ec.ActiveExecutionPath[blockID] = true
}

// Deactivate removes a block from the active execution path.
func (ec *ExecutionContext) Deactivate(blockID string) {
	delete(ec.ActiveExecutionPath, blockID)
}

// IsActive reports whether a block is on the active execution path.
func (ec *ExecutionContext) IsActive(blockID string) bool {
	return ec.ActiveExecutionPath[blockID]
}

// HasExecuted reports whether a block completed in the current pass.
func (ec *ExecutionContext) HasExecuted(blockID string) bool {
	return ec.ExecutedBlocks[blockID]
}

// ResetBlock clears a loop node's per-iteration state so the node runs again.
func (ec *ExecutionContext) ResetBlock(blockID string) {
	delete(ec.ExecutedBlocks, blockID)
	delete(ec.BlockStates, blockID)
	ec.ActiveExecutionPath[blockID] = true
}

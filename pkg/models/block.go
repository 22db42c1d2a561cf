package models

import "strings"

// Block type tags. Blocks without a specialized handler are executed by the
// generic tool dispatcher.
const (
	BlockTypeTrigger   = "trigger"
	BlockTypeAgent     = "agent"
	BlockTypeCondition = "condition"
	BlockTypeFunction  = "function"
	BlockTypeTool      = "tool"
)

// Block represents a single node in the workflow graph.
type Block struct {
	ID       string        `json:"id"      validate:"required"`
	Type     string        `json:"type"    validate:"required"`
	Config   BlockConfig   `json:"config"`
	Enabled  bool          `json:"enabled"`
	Metadata BlockMetadata `json:"metadata,omitempty"`
}

// BlockConfig holds the tool identifier and the raw parameter map. Parameter
// values may be literals, objects, arrays or strings containing reference
// syntax; they are resolved per execution by the input resolver.
type BlockConfig struct {
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// BlockMetadata carries display information from the editor.
type BlockMetadata struct {
	Name string `json:"name,omitempty"`
}

// Name returns the human label for the block, falling back to its id.
func (b *Block) Name() string {
	if b.Metadata.Name != "" {
		return b.Metadata.Name
	}

	return b.ID
}

// NormalizedName lower-cases the display name and strips whitespace so users
// can reference a block as <myblock.output> regardless of label formatting.
func (b *Block) NormalizedName() string {
	return NormalizeBlockName(b.Name())
}

// NormalizeBlockName lower-cases a label and removes all whitespace.
func NormalizeBlockName(name string) string {
	lowered := strings.ToLower(name)

	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		default:
			return r
		}
	}, lowered)
}

// Connection is a directed edge between two blocks. SourceHandle distinguishes
// branch outputs of a condition block ("true"/"false"); handles are empty for
// plain edges.
type Connection struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Loop names a subset of blocks that re-execute together up to a fixed
// iteration count. Nodes are listed in graph order; that order matters for
// feedback-edge classification and entry-block selection.
type Loop struct {
	Nodes      []string `json:"nodes"`
	Iterations int      `json:"iterations"`
}

// Contains reports whether the loop includes the given block.
func (l *Loop) Contains(blockID string) bool {
	for _, nodeID := range l.Nodes {
		if nodeID == blockID {
			return true
		}
	}

	return false
}

// Position returns the block's index in the loop's node list, or -1.
func (l *Loop) Position(blockID string) int {
	for i, nodeID := range l.Nodes {
		if nodeID == blockID {
			return i
		}
	}

	return -1
}

// Package protocol defines the interfaces and contracts for pluggable tools
// and block handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/karzal/wove/pkg/models"
)

// ToolContextKey is the parameter key under which the dispatcher injects
// execution metadata into a tool call.
const ToolContextKey = "_context"

// Tool is one callable integration. The engine treats tools as opaque: they
// receive fully resolved parameters and answer with a ToolResult. A returned
// error means the call itself could not be made; a ToolResult with
// Success=false means the integration reported failure.
type Tool interface {
	Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (*models.ToolResult, error)
}

// ToolFactory creates tool instances and describes the tool type.
type ToolFactory interface {
	// Create builds a tool instance for one invocation.
	Create(ctx context.Context, config map[string]any) (Tool, error)

	// ID returns the unique identifier for this tool type.
	ID() string

	// Name returns the human-readable name for this tool type.
	Name() string

	// Description returns a description of what this tool does.
	Description() string

	// Schema returns the JSON schema for this tool's parameters.
	Schema() map[string]any
}

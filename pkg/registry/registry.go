// Package registry provides lookup and registration for tools and block
// handlers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karzal/wove/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrToolNotRegistered is returned when no factory exists for a tool id.
var ErrToolNotRegistered = errors.New("tool not registered")

type Registry struct {
	logger        *slog.Logger
	toolFactories map[string]protocol.ToolFactory
	blockHandlers []protocol.BlockHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		toolFactories: make(map[string]protocol.ToolFactory),
	}
}

// RegisterTool adds a tool factory, validating its declared schema first so a
// bad descriptor fails at startup rather than mid-run.
func (r *Registry) RegisterTool(factory protocol.ToolFactory) error {
	if schema := factory.Schema(); schema != nil {
		loader := gojsonschema.NewGoLoader(schema)

		_, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return fmt.Errorf("tool %s declares an invalid schema: %w", factory.ID(), err)
		}
	}

	r.toolFactories[factory.ID()] = factory

	return nil
}

// RegisterBlockHandler adds a specialized block handler. Handlers are
// consulted in registration order; the first match wins.
func (r *Registry) RegisterBlockHandler(handler protocol.BlockHandler) {
	r.blockHandlers = append(r.blockHandlers, handler)
}

// HandlerFor returns the specialized handler for a block type, or nil when
// the block falls through to the generic tool dispatcher.
func (r *Registry) HandlerFor(blockType string) protocol.BlockHandler {
	for _, handler := range r.blockHandlers {
		if handler.Matches(blockType) {
			return handler
		}
	}

	return nil
}

// CreateTool builds a tool instance for one invocation.
func (r *Registry) CreateTool(ctx context.Context, toolID string, config map[string]any) (protocol.Tool, error) {
	factory, ok := r.toolFactories[toolID]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", toolID, ErrToolNotRegistered)
	}

	return factory.Create(ctx, config)
}

// ToolName returns the display name for a registered tool id, or the id
// itself when unknown.
func (r *Registry) ToolName(toolID string) string {
	if factory, ok := r.toolFactories[toolID]; ok {
		return factory.Name()
	}

	return toolID
}

// ValidateToolParams checks params against the tool's declared schema.
func (r *Registry) ValidateToolParams(toolID string, params map[string]any) error {
	factory, ok := r.toolFactories[toolID]
	if !ok {
		return fmt.Errorf("tool %q: %w", toolID, ErrToolNotRegistered)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("failed to validate params for tool %s: %w", toolID, err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid params for tool %s: %v", toolID, result.Errors())
	}

	return nil
}

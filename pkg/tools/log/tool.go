package log_tool

import (
	"context"
	"log/slog"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
)

func NewLogToolFactory() *LogToolFactory {
	return &LogToolFactory{}
}

type LogToolFactory struct{}

func (*LogToolFactory) ID() string {
	return "log"
}

func (*LogToolFactory) Name() string {
	return "Log"
}

func (*LogToolFactory) Description() string {
	return "Writes a message to the execution log. Useful for debugging workflows."
}

func (*LogToolFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports block references.",
				"examples": []string{
					"processing user <lookup.user_id>",
					"fetch returned <fetch.status_code>",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": true,
	}
}

func (f *LogToolFactory) Create(_ context.Context, params map[string]any) (protocol.Tool, error) {
	if params == nil {
		params = map[string]any{}
	}

	return NewLogTool(params), nil
}

type LogTool struct {
	message string
	level   string
}

func NewLogTool(params map[string]any) *LogTool {
	message, _ := params["message"].(string)
	level, _ := params["level"].(string)

	return &LogTool{message: message, level: level}
}

func (t *LogTool) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (*models.ToolResult, error) {
	logger = logger.With("tool_type", "log")

	switch t.level {
	case "debug":
		logger.DebugContext(ctx, t.message)
	case "warn":
		logger.WarnContext(ctx, t.message)
	case "error":
		logger.ErrorContext(ctx, t.message)
	default:
		logger.InfoContext(ctx, t.message)
	}

	return &models.ToolResult{
		Success: true,
		Output: map[string]any{
			"message": t.message,
			"level":   t.levelOrDefault(),
		},
	}, nil
}

func (t *LogTool) levelOrDefault() string {
	switch t.level {
	case "debug", "warn", "error":
		return t.level
	default:
		return "info"
	}
}

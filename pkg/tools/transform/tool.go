// Package transform provides the data transformation tool. It renders a Go
// text template over already-resolved input data.
package transform

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
)

var ErrTemplateMissing = errors.New("missing or invalid 'template' parameter")

func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

type ToolFactory struct{}

func (f *ToolFactory) Create(_ context.Context, params map[string]any) (protocol.Tool, error) {
	return NewTool(params)
}

func (f *ToolFactory) ID() string {
	return "transform"
}

func (f *ToolFactory) Name() string {
	return "Transform"
}

func (f *ToolFactory) Description() string {
	return "Transforms input data using a Go template expression."
}

func (f *ToolFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"description": "Input data to transform. Usually a block reference that resolves to an object or array.",
				"examples": []string{
					"<fetch_users.body>",
					"<start.payload>",
				},
			},
			"template": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Go template applied to the input data. Output that looks like JSON is parsed back into structured data.",
				"examples": []string{
					"{{.name}}",
					`{"full_name": "{{.first}} {{.last}}", "seen_at": "{{now}}"}`,
					"{{len .items}}",
				},
			},
		},
		"required":             []string{"template"},
		"additionalProperties": true,
	}
}

// Tool renders a template over its input.
type Tool struct {
	Input    any
	Template string
}

func NewTool(params map[string]any) (*Tool, error) {
	tmpl, ok := params["template"].(string)
	if !ok || tmpl == "" {
		return nil, ErrTemplateMissing
	}

	return &Tool{
		Input:    params["input"],
		Template: tmpl,
	}, nil
}

func (t *Tool) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (*models.ToolResult, error) {
	logger = logger.With("module", "transform_tool")
	logger.DebugContext(ctx, "Executing transform")

	result, err := render(t.Template, t.Input)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return &models.ToolResult{
		Success: true,
		Output:  map[string]any{"result": result},
	}, nil
}

func render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).
		Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

package httprequest

import (
	"context"

	"github.com/karzal/wove/pkg/protocol"
)

// ToolFactory creates HTTP request tool instances.
type ToolFactory struct{}

func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

// Create builds a request tool from the given resolved parameters.
func (f *ToolFactory) Create(_ context.Context, params map[string]any) (protocol.Tool, error) {
	return NewTool(params)
}

func (f *ToolFactory) ID() string {
	return "http_request"
}

func (f *ToolFactory) Name() string {
	return "HTTP Request"
}

func (f *ToolFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers, body and retries."
}

// Schema returns the JSON schema for this tool's parameters.
func (f *ToolFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports block references.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/<lookup.user_id>",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"examples": []map[string]string{
					{
						"Content-Type":  "application/json",
						"Authorization": "Bearer {{API_TOKEN}}",
					},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content.",
				"examples": []string{
					`{"name": "John Doe", "email": "john@example.com"}`,
					`{"user_id": "<create_user.id>", "status": "active"}`,
				},
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
			"retry": map[string]any{
				"type":        "object",
				"description": "Retry configuration for failed requests",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "integer",
						"description": "Total attempts including the first",
						"default":     1,
						"minimum":     1,
						"maximum":     5, //nolint:mnd // schema bound
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between attempts in milliseconds",
						"default":     1000,  //nolint:mnd // schema bound
						"minimum":     0,
						"maximum":     30000, //nolint:mnd // schema bound
					},
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": true,
	}
}

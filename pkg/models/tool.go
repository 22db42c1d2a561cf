package models

// ToolResult is the uniform outcome of a tool invocation. Tools are opaque
// to the engine: anything beyond this shape is tool-internal.
type ToolResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

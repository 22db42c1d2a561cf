// Package web provides the HTTP surface: workflow management, execution
// triggering and the pause/resume endpoints.
package web

import "github.com/karzal/wove/pkg/models"

// CreateWorkflowRequest is the body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description"`
	Blocks      []*models.Block         `json:"blocks"`
	Connections []*models.Connection    `json:"connections"`
	Loops       map[string]*models.Loop `json:"loops,omitempty"`
	Variables   map[string]any          `json:"variables,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	Owner       string                  `json:"owner"       validate:"required"`
}

// UpdateWorkflowRequest supports partial updates; nil fields are left
// untouched.
type UpdateWorkflowRequest struct {
	Name        *string                 `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                 `json:"description,omitempty"`
	Blocks      []*models.Block         `json:"blocks,omitempty"`
	Connections []*models.Connection    `json:"connections,omitempty"`
	Loops       map[string]*models.Loop `json:"loops,omitempty"`
	Variables   map[string]any          `json:"variables,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// ExecuteWorkflowRequest carries optional trigger data for a run request.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ExecuteWorkflowResponse acknowledges that a run was requested; execution
// happens asynchronously in a worker.
type ExecuteWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	EventID    string `json:"event_id"`
	Status     string `json:"status"`
}

// ResumeRequest is the body for resuming a paused execution.
type ResumeRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/pause"
	"github.com/karzal/wove/pkg/persistence"
)

type APIHandlers struct {
	store     persistence.Persistence
	pauses    *pause.Manager
	publisher eventbus.EventPublisher
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	pauses *pause.Manager,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		pauses:    pauses,
		publisher: publisher,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "api"),
	}
}

// Register mounts every route on the app. Kept separate from the fiber app
// construction so tests can mount onto a bare app.
func (h *APIHandlers) Register(app *fiber.App) {
	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/execute", h.ExecuteWorkflow)

	w.Get("/:id/executions/:executionId/pause/:contextId", h.GetPauseContext)
	w.Post("/:id/executions/:executionId/pause/:contextId/resume", h.RequestResume)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if workflows == nil {
		workflows = []*models.Workflow{}
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Blocks:      req.Blocks,
		Connections: req.Connections,
		Loops:       req.Loops,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	if err := h.validator.Struct(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := workflow.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.store.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Blocks != nil {
		existing.Blocks = req.Blocks
	}

	if req.Connections != nil {
		existing.Connections = req.Connections
	}

	if req.Loops != nil {
		existing.Loops = req.Loops
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	if err := h.validator.Struct(existing); err != nil {
		return badRequest(c, err.Error())
	}

	if err := existing.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.SaveWorkflow(c.Context(), existing); err != nil {
		return internalError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.store.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleWorkflowError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow publishes an ExecutionRequested event; a worker picks it
// up and runs the graph.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	workflow, err := h.store.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	event := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, workflow.ID),
		TriggerData: req.TriggerData,
	}

	if err := h.publisher.Publish(c.Context(), workflow.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteWorkflowResponse{
		WorkflowID: workflow.ID,
		EventID:    event.ID,
		Status:     "requested",
	})
}

func (h *APIHandlers) GetPauseContext(c fiber.Ctx) error {
	detail, err := h.pauses.GetPauseContextDetail(
		c.Context(),
		c.Params("id"),
		c.Params("executionId"),
		c.Params("contextId"),
	)
	if err != nil {
		return handlePauseError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) RequestResume(c fiber.Ctx) error {
	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	receipt, err := h.pauses.RequestResume(
		c.Context(),
		c.Params("id"),
		c.Params("executionId"),
		c.Params("contextId"),
		req.Input,
	)
	if err != nil {
		return handlePauseError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(receipt)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		h.logger.ErrorContext(c.Context(), "Persistence health check failed", "error", err)

		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

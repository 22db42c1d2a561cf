package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/karzal/wove/pkg/pause"
	"github.com/karzal/wove/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func gone(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusGone).
		WithInstance(c.Path()).
		WithType("expired").
		WithDetail(detail)

	return c.Status(fiber.StatusGone).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handlePauseError maps pause manager outcomes to problem responses. A
// rejected resume is the caller's situation, not a server fault.
func handlePauseError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pause.ErrContextNotFound):
		return notFound(c, "Pause context not found")
	case errors.Is(err, pause.ErrAlreadyResolved):
		return conflict(c, "Pause point already resolved")
	case errors.Is(err, pause.ErrExpired):
		return gone(c, "Paused execution expired")
	default:
		return internalError(c, err)
	}
}

func handleWorkflowError(c fiber.Ctx, err error) error {
	if persistence.IsWorkflowNotFound(err) {
		return notFound(c, "Workflow not found")
	}

	return internalError(c, err)
}

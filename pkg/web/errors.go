package web

import (
	"errors"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

var errJobFinished = errors.New("scraping job already finished")

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps repository sentinels to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")
	case persistence.IsBusinessNotFound(err):
		return problem(c, fiber.StatusNotFound, "business_not_found", "business not found")
	case persistence.IsExecutionNotFound(err):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")
	case persistence.IsScrapingJobNotFound(err):
		return problem(c, fiber.StatusNotFound, "scraping_job_not_found", "scraping job not found")
	case errors.Is(err, persistence.ErrTemplateNotFound):
		return problem(c, fiber.StatusNotFound, "template_not_found", "email template not found")
	case persistence.IsNotFound(err):
		return notFound(c, err.Error())
	case errors.Is(err, models.ErrInvalidGraph):
		return badRequest(c, err.Error())
	case errors.Is(err, errJobFinished):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	default:
		return internalError(c, err)
	}
}

// Package web provides the HTTP endpoints that start runs, inspect executions and steer
// background jobs.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Dispatcher enqueues the work requested through the API.
type Dispatcher interface {
	QueueWorkflowExecution(ctx context.Context, workflowID, userID, businessID string) (string, error)
	QueueEmail(ctx context.Context, email models.EmailJob) (string, error)
	QueueScraping(ctx context.Context, userID string, keywords []string, location string) (*models.ScrapingJob, error)
}

type APIHandlers struct {
	persistence persistence.Persistence
	dispatcher  Dispatcher
	validator   *validator.Validate
	logger      *slog.Logger
	feed        *ExecutionFeed
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	dispatcher Dispatcher,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		dispatcher:  dispatcher,
		validator:   validator,
		logger:      logger,
	}
}

// WithExecutionFeed serves the lifecycle events collected by feed on /executions/:id/events.
func (h *APIHandlers) WithExecutionFeed(feed *ExecutionFeed) *APIHandlers {
	h.feed = feed

	return h
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workflows")
	w.Post("/validate", h.ValidateWorkflow)
	w.Post("/:id/executions", h.QueueExecutions)

	router.Get("/executions/:id", h.GetExecution)
	router.Get("/executions/:id/events", h.GetExecutionEvents)

	s := router.Group("/scraping-jobs")
	s.Post("/", h.CreateScrapingJob)
	s.Get("/:id", h.GetScrapingJob)
	s.Patch("/:id", h.UpdateScrapingJob)

	router.Post("/emails", h.QueueEmail)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// QueueExecutions starts one run of the workflow per business.
func (h *APIHandlers) QueueExecutions(c fiber.Ctx) error {
	var req QueueExecutionsRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()

	wf, err := h.persistence.WorkflowRepository().GetByID(ctx, c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if !wf.IsActive {
		return problem(c, fiber.StatusConflict, "workflow_inactive", "workflow is not active")
	}

	businesses := h.persistence.BusinessRepository()

	for _, id := range req.BusinessIDs {
		business, err := businesses.GetByID(ctx, id)
		if err != nil {
			return handleError(c, err)
		}

		if business.UserID != wf.UserID {
			return badRequest(c, fmt.Sprintf("business %s does not belong to the workflow owner", id))
		}
	}

	response := QueueExecutionsResponse{WorkflowID: wf.ID, ExecutionIDs: make([]string, 0, len(req.BusinessIDs))}

	for _, id := range req.BusinessIDs {
		executionID, err := h.dispatcher.QueueWorkflowExecution(ctx, wf.ID, wf.UserID, id)
		if err != nil {
			return internalError(c, err)
		}

		response.ExecutionIDs = append(response.ExecutionIDs, executionID)
	}

	h.logger.InfoContext(ctx, "Queued workflow executions", "workflow_id", wf.ID, "count", len(response.ExecutionIDs))

	return c.Status(fiber.StatusAccepted).JSON(response)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionLogRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

// GetExecutionEvents lists the lifecycle events this API instance has seen for a run.
func (h *APIHandlers) GetExecutionEvents(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionLogRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	response := ExecutionEventsResponse{
		ExecutionID: execution.ID,
		Status:      execution.Status,
		Events:      []FeedEntry{},
	}

	if h.feed != nil {
		response.Events = h.feed.Events(execution.ID)
	}

	return c.JSON(response)
}

// ValidateWorkflow checks a graph document against the schema and the structural rules.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	graph, err := models.DecodeGraph(c.Body())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ValidateWorkflowResponse{Valid: true, Nodes: len(graph.Nodes), Edges: len(graph.Edges)})
}

func (h *APIHandlers) CreateScrapingJob(c fiber.Ctx) error {
	var req CreateScrapingJobRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	job, err := h.dispatcher.QueueScraping(c.Context(), req.UserID, req.Keywords, req.Location)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *APIHandlers) GetScrapingJob(c fiber.Ctx) error {
	job, err := h.persistence.ScrapingJobRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(job)
}

// UpdateScrapingJob pauses, resumes or stops a scraping job. Finished jobs cannot change.
func (h *APIHandlers) UpdateScrapingJob(c fiber.Ctx) error {
	var req UpdateScrapingJobRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()
	jobs := h.persistence.ScrapingJobRepository()

	job, err := jobs.GetByID(ctx, c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if job.IsTerminal() {
		return handleError(c, fmt.Errorf("%w: %s", errJobFinished, job.Status))
	}

	err = jobs.UpdateStatus(ctx, job.ID, req.Status, "")
	if err != nil {
		return handleError(c, err)
	}

	job.Status = req.Status

	return c.JSON(job)
}

// QueueEmail renders a template or an inline message for a business and queues the delivery.
func (h *APIHandlers) QueueEmail(c fiber.Ctx) error {
	var req QueueEmailRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()

	business, err := h.persistence.BusinessRepository().GetByID(ctx, req.BusinessID)
	if err != nil {
		return handleError(c, err)
	}

	if business.UserID != req.UserID {
		return badRequest(c, "business does not belong to the user")
	}

	if business.Email == "" {
		return badRequest(c, "business has no email address")
	}

	subject, body := req.Subject, req.Body

	if req.TemplateID != "" {
		tmpl, err := h.persistence.TemplateRepository().GetByID(ctx, req.TemplateID)
		if err != nil {
			return handleError(c, err)
		}

		subject, body = tmpl.Subject, tmpl.Body
	}

	ec := models.NewExecutionContext("", "", req.UserID, business, nil)
	job := models.EmailJob{
		UserID:     req.UserID,
		BusinessID: business.ID,
		TemplateID: req.TemplateID,
		To:         business.Email,
		Subject:    template.Interpolate(subject, ec),
		Body:       template.Interpolate(body, ec),
	}

	emailLogID, err := h.dispatcher.QueueEmail(ctx, job)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(QueueEmailResponse{
		EmailLogID: emailLogID,
		To:         job.To,
		Subject:    job.Subject,
	})
}

// Package workers consumes the workflow, email and scraping queues.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/queue"
)

// Job names.
const (
	JobExecuteWorkflow = "execute-workflow"
	JobResumeWorkflow  = "resume-workflow"
	JobSendEmail       = "send-email"
	JobScrape          = "scrape"
)

// Dispatcher is the single entry point that starts runs and background jobs. Every workflow run
// gets its pending execution log before the job is visible to workers.
type Dispatcher struct {
	broker       queue.Broker
	executions   persistence.ExecutionLogRepository
	emailLogs    persistence.EmailLogRepository
	scrapingJobs persistence.ScrapingJobRepository
	logger       *slog.Logger

	// Options applies to every enqueued job.
	Options queue.EnqueueOptions
}

func NewDispatcher(broker queue.Broker, store persistence.Persistence, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		broker:       broker,
		executions:   store.ExecutionLogRepository(),
		emailLogs:    store.EmailLogRepository(),
		scrapingJobs: store.ScrapingJobRepository(),
		logger:       logger.With("module", "dispatcher"),
	}
}

// QueueWorkflowExecution records a pending execution and enqueues the run. It returns the
// execution id.
func (d *Dispatcher) QueueWorkflowExecution(ctx context.Context, workflowID, userID, businessID string) (string, error) {
	execution := &models.ExecutionLog{
		WorkflowID: workflowID,
		BusinessID: businessID,
		UserID:     userID,
		Status:     models.ExecutionStatusPending,
	}

	err := d.executions.Create(ctx, execution)
	if err != nil {
		return "", fmt.Errorf("failed to create execution log: %w", err)
	}

	payload := models.WorkflowJob{
		WorkflowID:  workflowID,
		UserID:      userID,
		BusinessID:  businessID,
		ExecutionID: execution.ID,
	}

	jobID, err := d.broker.Enqueue(ctx, models.QueueWorkflow, JobExecuteWorkflow, payload, d.Options)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue workflow %s: %w", workflowID, err)
	}

	d.logger.DebugContext(ctx, "Queued workflow execution",
		"workflow_id", workflowID, "business_id", businessID, "execution_id", execution.ID, "job_id", jobID)

	return execution.ID, nil
}

// Continuation identifies a delayed resume enqueued for a suspended branch.
type Continuation struct {
	ExecutionID string
	JobID       string
}

// QueueContinuation enqueues a delayed run that resumes parent after the delay node, carrying the
// variables of the suspended run.
func (d *Dispatcher) QueueContinuation(ctx context.Context, parent *models.ExecutionLog, suspension models.Suspension, variables map[string]any) (Continuation, error) {
	execution := &models.ExecutionLog{
		WorkflowID:        parent.WorkflowID,
		BusinessID:        parent.BusinessID,
		UserID:            parent.UserID,
		Status:            models.ExecutionStatusPending,
		ResumeFromNodeID:  suspension.NodeID,
		ParentExecutionID: parent.ID,
	}

	err := d.executions.Create(ctx, execution)
	if err != nil {
		return Continuation{}, fmt.Errorf("failed to create continuation log: %w", err)
	}

	payload := models.WorkflowJob{
		WorkflowID:       parent.WorkflowID,
		UserID:           parent.UserID,
		BusinessID:       parent.BusinessID,
		ExecutionID:      execution.ID,
		ResumeFromNodeID: suspension.NodeID,
		Variables:        variables,
	}

	opts := d.Options
	opts.Delay = suspension.ResumeAfter

	jobID, err := d.broker.Enqueue(ctx, models.QueueWorkflow, JobResumeWorkflow, payload, opts)
	if err != nil {
		return Continuation{}, fmt.Errorf("failed to enqueue continuation: %w", err)
	}

	return Continuation{ExecutionID: execution.ID, JobID: jobID}, nil
}

// QueueEmail records a queued email log for a rendered message and enqueues its delivery.
// It returns the email log id.
func (d *Dispatcher) QueueEmail(ctx context.Context, email models.EmailJob) (string, error) {
	entry := &models.EmailLog{
		UserID:     email.UserID,
		BusinessID: email.BusinessID,
		TemplateID: email.TemplateID,
		Subject:    email.Subject,
		Body:       email.Body,
		Status:     models.EmailStatusQueued,
	}

	err := d.emailLogs.Insert(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("failed to record email: %w", err)
	}

	email.EmailLogID = entry.ID

	_, err = d.broker.Enqueue(ctx, models.QueueEmail, JobSendEmail, email, d.Options)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue email: %w", err)
	}

	return entry.ID, nil
}

// QueueScraping creates a pending scraping job and enqueues it.
func (d *Dispatcher) QueueScraping(ctx context.Context, userID string, keywords []string, location string) (*models.ScrapingJob, error) {
	cleaned := make([]string, 0, len(keywords))

	for _, keyword := range keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			cleaned = append(cleaned, keyword)
		}
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("scraping job needs at least one keyword")
	}

	job := &models.ScrapingJob{
		UserID:   userID,
		Keywords: cleaned,
		Location: strings.TrimSpace(location),
		Status:   models.ScrapingPending,
	}

	err := d.scrapingJobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraping job: %w", err)
	}

	payload := models.ScrapingJobPayload{ScrapingJobID: job.ID, UserID: userID}

	_, err = d.broker.Enqueue(ctx, models.QueueScraping, JobScrape, payload, d.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue scraping job: %w", err)
	}

	return job, nil
}

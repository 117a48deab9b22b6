// Package notify writes user-facing dashboard notifications and owner alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
)

// RepeatedFailureThreshold is the number of consecutive failed executions of a workflow that
// raises a warning.
const RepeatedFailureThreshold = 3

type Notifier struct {
	notifications persistence.NotificationRepository
	executions    persistence.ExecutionLogRepository
	users         persistence.UserRepository
	whatsapp      protocol.WhatsAppSender
	logger        *slog.Logger
}

// NewNotifier builds a Notifier. whatsapp may be nil, in which case owner alerts are skipped.
func NewNotifier(store persistence.Persistence, whatsapp protocol.WhatsAppSender, logger *slog.Logger) *Notifier {
	return &Notifier{
		notifications: store.NotificationRepository(),
		executions:    store.ExecutionLogRepository(),
		users:         store.UserRepository(),
		whatsapp:      whatsapp,
		logger:        logger.With("module", "notify"),
	}
}

func (n *Notifier) insert(ctx context.Context, userID string, level models.NotificationLevel, category models.NotificationCategory, title, message string) error {
	err := n.notifications.Insert(ctx, &models.Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Level:    level,
		Category: category,
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

func workflowName(workflow *models.Workflow) string {
	if workflow.Name != "" {
		return workflow.Name
	}

	return workflow.ID
}

// WorkflowCompleted records a successful run.
func (n *Notifier) WorkflowCompleted(ctx context.Context, workflow *models.Workflow, execution *models.ExecutionLog) error {
	return n.insert(ctx, execution.UserID, models.NotificationSuccess, models.CategoryWorkflow,
		"Workflow completed",
		fmt.Sprintf("Workflow %q finished for business %s.", workflowName(workflow), execution.BusinessID))
}

// WorkflowFailed records a failed run and adds a warning once the workflow's most recent
// executions are all failures.
func (n *Notifier) WorkflowFailed(ctx context.Context, workflow *models.Workflow, execution *models.ExecutionLog) error {
	err := n.insert(ctx, execution.UserID, models.NotificationError, models.CategoryWorkflow,
		"Workflow failed",
		fmt.Sprintf("Workflow %q failed for business %s: %s", workflowName(workflow), execution.BusinessID, execution.Error))
	if err != nil {
		return err
	}

	statuses, err := n.executions.RecentStatuses(ctx, workflow.ID, RepeatedFailureThreshold)
	if err != nil {
		return fmt.Errorf("recent statuses: %w", err)
	}

	if len(statuses) < RepeatedFailureThreshold || slices.ContainsFunc(statuses, func(s models.ExecutionStatus) bool {
		return s != models.ExecutionStatusFailed
	}) {
		return nil
	}

	n.logger.WarnContext(ctx, "Workflow failing repeatedly", "workflow_id", workflow.ID, "failures", len(statuses))

	return n.insert(ctx, execution.UserID, models.NotificationWarning, models.CategoryWorkflow,
		"Workflow failing repeatedly",
		fmt.Sprintf("Workflow %q failed %d times in a row. Check its configuration.", workflowName(workflow), len(statuses)))
}

func categoryFor(queue string) models.NotificationCategory {
	switch queue {
	case models.QueueEmail:
		return models.CategoryEmail
	case models.QueueScraping:
		return models.CategoryScraping
	case models.QueueWorkflow:
		return models.CategoryWorkflow
	default:
		return models.CategorySystem
	}
}

// JobFailed records a job that exhausted its retries and alerts the owner over WhatsApp when
// they have a phone number on file.
func (n *Notifier) JobFailed(ctx context.Context, userID, queue, jobName string, jobErr error) error {
	message := fmt.Sprintf("%s job %q failed after all retries: %v", queue, jobName, jobErr)

	err := n.insert(ctx, userID, models.NotificationError, categoryFor(queue), "Background job failed", message)
	if err != nil {
		return err
	}

	if n.whatsapp == nil || userID == "" {
		return nil
	}

	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return nil
		}

		return fmt.Errorf("load user: %w", err)
	}

	if user.Phone == "" {
		return nil
	}

	if err := n.whatsapp.SendText(ctx, user.Phone, "⚠️ "+message); err != nil {
		return fmt.Errorf("whatsapp alert: %w", err)
	}

	return nil
}

// ScrapingFinished records the end of a scraping job.
func (n *Notifier) ScrapingFinished(ctx context.Context, job *models.ScrapingJob) error {
	level := models.NotificationSuccess
	title := "Scraping completed"

	switch job.Status {
	case models.ScrapingFailed:
		level = models.NotificationError
		title = "Scraping failed"
	case models.ScrapingStopped:
		level = models.NotificationInfo
		title = "Scraping stopped"
	}

	message := fmt.Sprintf("Found %d business(es) for %v in %d iteration(s).", job.Found, job.Keywords, job.Iterations)
	if job.Error != "" {
		message += " " + job.Error
	}

	return n.insert(ctx, job.UserID, level, models.CategoryScraping, title, message)
}

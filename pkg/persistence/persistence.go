// Package persistence provides the data storage abstraction consumed by the workflow engine.
package persistence

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

type Persistence interface {
	BusinessRepository() BusinessRepository
	UserRepository() UserRepository
	TemplateRepository() TemplateRepository
	EmailLogRepository() EmailLogRepository
	WorkflowRepository() WorkflowRepository
	ExecutionLogRepository() ExecutionLogRepository
	NotificationRepository() NotificationRepository
	TriggerRepository() TriggerRepository
	ScrapingJobRepository() ScrapingJobRepository
	TableStore() TableStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// BusinessRepository manages scraped leads.
type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*models.Business, error)
	// Insert returns ErrDuplicateBusiness when the user already has the business.
	Insert(ctx context.Context, business *models.Business) error
	// UpdateEmailStatus marks the outcome of an outreach email on the business row.
	UpdateEmailStatus(ctx context.Context, id, status string, sentAt *time.Time) error
	Find(ctx context.Context, filter models.BusinessFilter) ([]*models.Business, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.EmailTemplate, error)
}

// EmailLogRepository stores outreach email attempts and answers the suppression queries.
type EmailLogRepository interface {
	Insert(ctx context.Context, log *models.EmailLog) error
	UpdateStatus(ctx context.Context, id, status, errMessage string, sentAt *time.Time) error
	// HasSent reports whether a sent email exists for the (business, template) pair.
	HasSent(ctx context.Context, businessID, templateID string) (bool, error)
	// SentSince reports whether any email was sent to the business at or after since.
	SentSince(ctx context.Context, businessID string, since time.Time) (bool, error)
	// CountSentByUserSince counts the user's sent emails at or after since.
	CountSentByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	// RecordRun sets lastRunAt and increments executionCount.
	RecordRun(ctx context.Context, id string, at time.Time) error
}

type ExecutionLogRepository interface {
	Create(ctx context.Context, log *models.ExecutionLog) error
	GetByID(ctx context.Context, id string) (*models.ExecutionLog, error)
	// Update overwrites a non-terminal record; it returns ErrExecutionCompleted once CompletedAt is set.
	Update(ctx context.Context, log *models.ExecutionLog) error
	// RecentStatuses returns the statuses of the workflow's most recent closed executions, newest first.
	RecentStatuses(ctx context.Context, workflowID string, limit int) ([]models.ExecutionStatus, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

type TriggerRepository interface {
	Save(ctx context.Context, trigger *models.TriggerDefinition) error
	Due(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error)
	InsertExecution(ctx context.Context, execution *models.TriggerExecution) error
}

type ScrapingJobRepository interface {
	Create(ctx context.Context, job *models.ScrapingJob) error
	GetByID(ctx context.Context, id string) (*models.ScrapingJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ScrapingStatus, errMessage string) error
	UpdateProgress(ctx context.Context, id string, found, iterations int) error
}

// TableOperation is a generic row mutation issued by the database node. Every operation is
// scoped to UserID.
type TableOperation struct {
	UserID          string
	Table           string
	Operation       string
	Data            map[string]any
	Where           map[string]any
	ConflictColumns []string
}

// TableStore applies database-node operations to a whitelisted set of tables.
type TableStore interface {
	Apply(ctx context.Context, op TableOperation) (int64, error)
}

// WritableTables lists the tables and columns the database node may touch.
var WritableTables = map[string][]string{
	"businesses": {
		"id", "name", "email", "phone", "website", "address", "category", "linkedin_url", "source", "email_status",
	},
	"lead_notes": {"id", "business_id", "note", "stage"},
}

// ValidateTableOperation checks op against WritableTables.
func ValidateTableOperation(op TableOperation) error {
	columns, ok := WritableTables[op.Table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedTable, op.Table)
	}

	switch op.Operation {
	case models.DatabaseInsert, models.DatabaseUpsert:
		if len(op.Data) == 0 {
			return fmt.Errorf("%s requires data", op.Operation)
		}
	case models.DatabaseUpdate:
		if len(op.Data) == 0 || len(op.Where) == 0 {
			return fmt.Errorf("update requires data and where")
		}
	case models.DatabaseDelete:
		if len(op.Where) == 0 {
			return fmt.Errorf("delete requires where")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOperation, op.Operation)
	}

	check := func(column string) error {
		if !slices.Contains(columns, column) {
			return fmt.Errorf("%w: column %q on %s", ErrUnsupportedTable, column, op.Table)
		}

		return nil
	}

	for column := range op.Data {
		if err := check(column); err != nil {
			return err
		}
	}

	for column := range op.Where {
		if err := check(column); err != nil {
			return err
		}
	}

	for _, column := range op.ConflictColumns {
		if err := check(column); err != nil {
			return err
		}
	}

	return nil
}

// Package postgresql provides the PostgreSQL persistence implementation for the outreach engine.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	businessRepo     *BusinessRepository
	userRepo         *UserRepository
	templateRepo     *TemplateRepository
	emailLogRepo     *EmailLogRepository
	workflowRepo     *WorkflowRepository
	executionLogRepo *ExecutionLogRepository
	notificationRepo *NotificationRepository
	triggerRepo      *TriggerRepository
	scrapingJobRepo  *ScrapingJobRepository
	tableStore       *TableStore
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	err = sqlbase.NewMigrator(logger, database, migrations()).Migrate(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:               database,
		logger:           logger,
		businessRepo:     NewBusinessRepository(database, logger),
		userRepo:         NewUserRepository(database),
		templateRepo:     NewTemplateRepository(database),
		emailLogRepo:     NewEmailLogRepository(database),
		workflowRepo:     NewWorkflowRepository(database),
		executionLogRepo: NewExecutionLogRepository(database, logger),
		notificationRepo: NewNotificationRepository(database, logger),
		triggerRepo:      NewTriggerRepository(database, logger),
		scrapingJobRepo:  NewScrapingJobRepository(database),
		tableStore:       NewTableStore(database),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) BusinessRepository() persistence.BusinessRepository { return p.businessRepo }

func (p *Persistence) UserRepository() persistence.UserRepository { return p.userRepo }

func (p *Persistence) TemplateRepository() persistence.TemplateRepository { return p.templateRepo }

func (p *Persistence) EmailLogRepository() persistence.EmailLogRepository { return p.emailLogRepo }

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository { return p.workflowRepo }

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.executionLogRepo
}

func (p *Persistence) NotificationRepository() persistence.NotificationRepository {
	return p.notificationRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository { return p.triggerRepo }

func (p *Persistence) ScrapingJobRepository() persistence.ScrapingJobRepository {
	return p.scrapingJobRepo
}

func (p *Persistence) TableStore() persistence.TableStore { return p.tableStore }

type scanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports a unique_violation (23505) from lib/pq.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

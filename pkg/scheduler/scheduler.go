// Package scheduler polls due triggers and fans them out into workflow runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

const DefaultPollInterval = time.Minute

// Dispatcher starts one workflow run and returns its execution id.
type Dispatcher interface {
	QueueWorkflowExecution(ctx context.Context, workflowID, userID, businessID string) (string, error)
}

// Scheduler is the only writer of trigger LastRunAt and NextRunAt.
type Scheduler struct {
	triggers   persistence.TriggerRepository
	workflows  persistence.WorkflowRepository
	businesses persistence.BusinessRepository
	dispatcher Dispatcher
	logger     *slog.Logger

	PollInterval time.Duration
	// BatchSize applies to triggers without their own batch size.
	BatchSize int
	Now       func() time.Time
}

func New(store persistence.Persistence, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		triggers:     store.TriggerRepository(),
		workflows:    store.WorkflowRepository(),
		businesses:   store.BusinessRepository(),
		dispatcher:   dispatcher,
		logger:       logger.With("module", "scheduler"),
		PollInterval: DefaultPollInterval,
		BatchSize:    models.DefaultTriggerBatchSize,
		Now:          time.Now,
	}
}

// Run ticks immediately and then every PollInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.logger.InfoContext(ctx, "Starting trigger scheduler", "poll_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to process due triggers", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Trigger scheduler stopped")

			return nil
		case <-ticker.C:
		}
	}
}

// Tick fires every due trigger once and returns how many runs were queued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.Now().UTC()

	due, err := s.triggers.Due(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to load due triggers: %w", err)
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "Processing due triggers", "count", len(due))
	}

	queued := 0

	for _, trigger := range due {
		n, err := s.fire(ctx, trigger, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Trigger firing failed", "trigger_id", trigger.ID, "error", err)
		}

		queued += n

		trigger.LastRunAt = &now
		next := trigger.ComputeNextRunAt(now)
		trigger.NextRunAt = &next

		err = s.triggers.Save(ctx, trigger)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to advance trigger", "trigger_id", trigger.ID, "error", err)
		}
	}

	return queued, nil
}

func (s *Scheduler) batchSize(trigger *models.TriggerDefinition) int {
	if trigger.Config.BatchSize > 0 {
		return trigger.Config.BatchSize
	}

	if s.BatchSize > 0 {
		return s.BatchSize
	}

	return trigger.BatchSize()
}

// fire selects the trigger's businesses and queues one run per business.
func (s *Scheduler) fire(ctx context.Context, trigger *models.TriggerDefinition, now time.Time) (int, error) {
	logger := s.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "trigger_type", trigger.TriggerType)

	if trigger.TriggerType == models.TriggerTypeDelayCompletion {
		return 0, nil
	}

	workflow, err := s.workflows.GetByID(ctx, trigger.WorkflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to load workflow: %w", err)
	}

	if !workflow.IsActive {
		logger.InfoContext(ctx, "Workflow inactive, skipping trigger")

		return 0, nil
	}

	filter := models.BusinessFilter{
		UserID:     workflow.UserID,
		Category:   workflow.TargetCategory,
		NotEmailed: true,
		Limit:      s.batchSize(trigger),
	}

	if trigger.TriggerType == models.TriggerTypeNewBusiness {
		since := trigger.CreatedAt
		if trigger.LastRunAt != nil {
			since = *trigger.LastRunAt
		}

		filter.CreatedAfter = &since
	}

	businesses, err := s.businesses.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to select businesses: %w", err)
	}

	queued := 0

	for _, business := range businesses {
		record := &models.TriggerExecution{
			TriggerID:  trigger.ID,
			WorkflowID: workflow.ID,
			BusinessID: business.ID,
			Status:     models.TriggerExecutionQueued,
			ExecutedAt: now,
		}

		executionID, err := s.dispatcher.QueueWorkflowExecution(ctx, workflow.ID, workflow.UserID, business.ID)
		if err != nil {
			record.Status = models.TriggerExecutionFailed
			record.Error = err.Error()
			logger.ErrorContext(ctx, "Failed to queue workflow run", "business_id", business.ID, "error", err)
		} else {
			record.ExecutionID = executionID
			queued++
		}

		if ierr := s.triggers.InsertExecution(ctx, record); ierr != nil {
			logger.ErrorContext(ctx, "Failed to record trigger execution", "business_id", business.ID, "error", ierr)
		}
	}

	logger.InfoContext(ctx, "Trigger fired", "selected", len(businesses), "queued", queued)

	return queued, nil
}

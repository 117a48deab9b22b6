package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

// TriggerRepository handles trigger definitions and their firing records.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

// Save creates or updates a trigger definition.
func (r *TriggerRepository) Save(ctx context.Context, trigger *models.TriggerDefinition) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	configJSON, err := json.Marshal(trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO triggers (id, workflow_id, user_id, trigger_type, config, is_active, last_run_at, next_run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			trigger_type = EXCLUDED.trigger_type,
			config = EXCLUDED.config,
			is_active = EXCLUDED.is_active,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at`,
		trigger.ID,
		trigger.WorkflowID,
		trigger.UserID,
		trigger.TriggerType,
		configJSON,
		trigger.IsActive,
		trigger.LastRunAt,
		trigger.NextRunAt,
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

// Due returns the active triggers whose next run is at or before now.
// A trigger never scheduled (next_run_at NULL) is due immediately.
func (r *TriggerRepository) Due(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, user_id, trigger_type, config, is_active, last_run_at, next_run_at, created_at
		FROM triggers
		WHERE is_active AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.TriggerDefinition, 0)

	for rows.Next() {
		var (
			trigger    models.TriggerDefinition
			configJSON []byte
			lastRunAt  sql.NullTime
			nextRunAt  sql.NullTime
		)

		err := rows.Scan(
			&trigger.ID,
			&trigger.WorkflowID,
			&trigger.UserID,
			&trigger.TriggerType,
			&configJSON,
			&trigger.IsActive,
			&lastRunAt,
			&nextRunAt,
			&trigger.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		err = json.Unmarshal(configJSON, &trigger.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}

		if lastRunAt.Valid {
			trigger.LastRunAt = &lastRunAt.Time
		}

		if nextRunAt.Valid {
			trigger.NextRunAt = &nextRunAt.Time
		}

		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *TriggerRepository) InsertExecution(ctx context.Context, execution *models.TriggerExecution) error {
	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}

	if execution.ExecutedAt.IsZero() {
		execution.ExecutedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trigger_executions (id, trigger_id, workflow_id, business_id, execution_id, status, error_message, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		execution.ID,
		execution.TriggerID,
		execution.WorkflowID,
		execution.BusinessID,
		execution.ExecutionID,
		execution.Status,
		execution.Error,
		execution.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trigger execution: %w", err)
	}

	return nil
}

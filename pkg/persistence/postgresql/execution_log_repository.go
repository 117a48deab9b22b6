package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

const executionLogColumns = `
	id, workflow_id, business_id, user_id, status, logs, state, error_message, attempt,
	resume_from_node_id, parent_execution_id, created_at, started_at, completed_at`

// ExecutionLogRepository handles execution log database operations.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Create inserts a new execution log, normally in pending status.
func (r *ExecutionLogRepository) Create(ctx context.Context, log *models.ExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	if log.Status == "" {
		log.Status = models.ExecutionStatusPending
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	logsJSON, stateJSON, err := marshalExecutionLog(log)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (`+executionLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		log.ID,
		log.WorkflowID,
		log.BusinessID,
		log.UserID,
		log.Status,
		logsJSON,
		stateJSON,
		log.Error,
		log.Attempt,
		log.ResumeFromNodeID,
		log.ParentExecutionID,
		log.CreatedAt,
		log.StartedAt,
		log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution log: %w", err)
	}

	return nil
}

// GetByID retrieves an execution log by its ID.
func (r *ExecutionLogRepository) GetByID(ctx context.Context, id string) (*models.ExecutionLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionLogColumns+` FROM execution_logs WHERE id = $1`, id)

	log, err := scanExecutionLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution log: %w", err)
	}

	return log, nil
}

// Update overwrites an open execution log. Closed records are left untouched.
func (r *ExecutionLogRepository) Update(ctx context.Context, log *models.ExecutionLog) error {
	logsJSON, stateJSON, err := marshalExecutionLog(log)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_logs SET
			status = $2,
			logs = $3,
			state = $4,
			error_message = $5,
			attempt = $6,
			started_at = $7,
			completed_at = $8
		WHERE id = $1 AND completed_at IS NULL`,
		log.ID,
		log.Status,
		logsJSON,
		stateJSON,
		log.Error,
		log.Attempt,
		log.StartedAt,
		log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	_, err = r.GetByID(ctx, log.ID)
	if err != nil {
		return err
	}

	return persistence.NewEntityError("Update", "execution", log.ID, persistence.ErrExecutionCompleted)
}

// RecentStatuses returns the statuses of the workflow's latest closed executions, newest first.
func (r *ExecutionLogRepository) RecentStatuses(ctx context.Context, workflowID string, limit int) ([]models.ExecutionStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status FROM execution_logs
		WHERE workflow_id = $1 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution statuses: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	statuses := make([]models.ExecutionStatus, 0, limit)

	for rows.Next() {
		var status models.ExecutionStatus

		err := rows.Scan(&status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution status: %w", err)
		}

		statuses = append(statuses, status)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution statuses: %w", err)
	}

	return statuses, nil
}

func marshalExecutionLog(log *models.ExecutionLog) ([]byte, []byte, error) {
	logs := log.Logs
	if logs == nil {
		logs = []string{}
	}

	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal logs: %w", err)
	}

	stateJSON, err := json.Marshal(log.State)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	return logsJSON, stateJSON, nil
}

func scanExecutionLog(row scanner) (*models.ExecutionLog, error) {
	var (
		log                  models.ExecutionLog
		logsJSON, stateJSON  []byte
		startedAt, completed sql.NullTime
	)

	err := row.Scan(
		&log.ID,
		&log.WorkflowID,
		&log.BusinessID,
		&log.UserID,
		&log.Status,
		&logsJSON,
		&stateJSON,
		&log.Error,
		&log.Attempt,
		&log.ResumeFromNodeID,
		&log.ParentExecutionID,
		&log.CreatedAt,
		&startedAt,
		&completed,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		log.StartedAt = &startedAt.Time
	}

	if completed.Valid {
		log.CompletedAt = &completed.Time
	}

	log.Logs = []string{}

	if logsJSON != nil {
		err := json.Unmarshal(logsJSON, &log.Logs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
		}
	}

	if stateJSON != nil {
		err := json.Unmarshal(stateJSON, &log.State)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
	}

	return &log, nil
}

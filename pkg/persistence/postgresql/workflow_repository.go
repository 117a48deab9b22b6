package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// GetByID returns a workflow with its graph.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , user_id
		  , name
		  , target_category
		  , is_active
		  , graph
		  , last_run_at
		  , execution_count
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	var (
		workflow  models.Workflow
		graphJSON []byte
		lastRunAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&workflow.ID,
		&workflow.UserID,
		&workflow.Name,
		&workflow.TargetCategory,
		&workflow.IsActive,
		&graphJSON,
		&lastRunAt,
		&workflow.ExecutionCount,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = json.Unmarshal(graphJSON, &workflow.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow graph: %w", err)
	}

	if lastRunAt.Valid {
		workflow.LastRunAt = &lastRunAt.Time
	}

	return &workflow, nil
}

// Save creates or updates a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	graphJSON, err := json.Marshal(workflow.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow graph: %w", err)
	}

	query := `
		INSERT INTO workflows (id, user_id, name, target_category, is_active, graph, last_run_at, execution_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			target_category = EXCLUDED.target_category,
			is_active = EXCLUDED.is_active,
			graph = EXCLUDED.graph,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.UserID,
		workflow.Name,
		workflow.TargetCategory,
		workflow.IsActive,
		graphJSON,
		workflow.LastRunAt,
		workflow.ExecutionCount,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// RecordRun bumps the run counters after a successful execution.
func (r *WorkflowRepository) RecordRun(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows SET last_run_at = $2, execution_count = execution_count + 1
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record workflow run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("RecordRun", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

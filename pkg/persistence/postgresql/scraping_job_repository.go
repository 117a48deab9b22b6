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

// ScrapingJobRepository handles scraping job state.
type ScrapingJobRepository struct {
	db *sql.DB
}

// NewScrapingJobRepository creates a new scraping job repository.
func NewScrapingJobRepository(db *sql.DB) *ScrapingJobRepository {
	return &ScrapingJobRepository{db: db}
}

func (r *ScrapingJobRepository) Create(ctx context.Context, job *models.ScrapingJob) error {
	now := time.Now().UTC()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.Status == "" {
		job.Status = models.ScrapingPending
	}

	job.CreatedAt = now
	job.UpdatedAt = now

	keywordsJSON, err := json.Marshal(job.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scraping_jobs (id, user_id, keywords, location, status, found, iterations, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID,
		job.UserID,
		keywordsJSON,
		job.Location,
		job.Status,
		job.Found,
		job.Iterations,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scraping job: %w", err)
	}

	return nil
}

func (r *ScrapingJobRepository) GetByID(ctx context.Context, id string) (*models.ScrapingJob, error) {
	var (
		job          models.ScrapingJob
		keywordsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, keywords, location, status, found, iterations, error_message, created_at, updated_at
		FROM scraping_jobs WHERE id = $1`, id).Scan(
		&job.ID,
		&job.UserID,
		&keywordsJSON,
		&job.Location,
		&job.Status,
		&job.Found,
		&job.Iterations,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "scraping job", id, persistence.ErrScrapingJobNotFound)
		}

		return nil, fmt.Errorf("failed to scan scraping job: %w", err)
	}

	err = json.Unmarshal(keywordsJSON, &job.Keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}

	return &job, nil
}

func (r *ScrapingJobRepository) UpdateStatus(ctx context.Context, id string, status models.ScrapingStatus, errMessage string) error {
	return r.exec(ctx, "UpdateStatus", id, `
		UPDATE scraping_jobs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`,
		id, status, errMessage)
}

func (r *ScrapingJobRepository) UpdateProgress(ctx context.Context, id string, found, iterations int) error {
	return r.exec(ctx, "UpdateProgress", id, `
		UPDATE scraping_jobs SET found = $2, iterations = $3, updated_at = NOW() WHERE id = $1`,
		id, found, iterations)
}

func (r *ScrapingJobRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s scraping job: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError(op, "scraping job", id, persistence.ErrScrapingJobNotFound)
	}

	return nil
}

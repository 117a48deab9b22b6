package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

// EmailLogRepository handles email log database operations.
type EmailLogRepository struct {
	db *sql.DB
}

// NewEmailLogRepository creates a new email log repository.
func NewEmailLogRepository(db *sql.DB) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

func (r *EmailLogRepository) Insert(ctx context.Context, log *models.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, user_id, business_id, template_id, subject, body, status, error_message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID,
		log.UserID,
		log.BusinessID,
		log.TemplateID,
		log.Subject,
		log.Body,
		log.Status,
		log.Error,
		log.SentAt,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}

	return nil
}

func (r *EmailLogRepository) UpdateStatus(ctx context.Context, id, status, errMessage string, sentAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_logs SET status = $2, error_message = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $1`, id, status, errMessage, sentAt)
	if err != nil {
		return fmt.Errorf("failed to update email log: %w", err)
	}

	return nil
}

func (r *EmailLogRepository) HasSent(ctx context.Context, businessID, templateID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_logs WHERE business_id = $1 AND template_id = $2 AND status = $3
		)`, businessID, templateID, models.EmailStatusSent).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query sent email logs: %w", err)
	}

	return exists, nil
}

func (r *EmailLogRepository) SentSince(ctx context.Context, businessID string, since time.Time) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_logs WHERE business_id = $1 AND status = $2 AND sent_at >= $3
		)`, businessID, models.EmailStatusSent, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query recent email logs: %w", err)
	}

	return exists, nil
}

func (r *EmailLogRepository) CountSentByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_logs WHERE user_id = $1 AND status = $2 AND sent_at >= $3`,
		userID, models.EmailStatusSent, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent email logs: %w", err)
	}

	return count, nil
}

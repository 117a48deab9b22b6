package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

// NotificationRepository handles dashboard notification storage.
type NotificationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sql.DB, logger *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

func (r *NotificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, level, category, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		notification.ID,
		notification.UserID,
		notification.Title,
		notification.Message,
		notification.Level,
		notification.Category,
		notification.Read,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListByUser returns the user's latest notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, level, category, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	notifications := make([]*models.Notification, 0)

	for rows.Next() {
		var n models.Notification

		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Level, &n.Category, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notifications = append(notifications, &n)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

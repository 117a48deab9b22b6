package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

const businessColumns = `
	id, user_id, name, email, phone, website, address, category, rating, review_count,
	linkedin_url, source, email_sent, email_sent_at, email_status, extra, created_at, updated_at`

// BusinessRepository handles business-related database operations.
type BusinessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBusinessRepository creates a new business repository.
func NewBusinessRepository(db *sql.DB, logger *slog.Logger) *BusinessRepository {
	return &BusinessRepository{db: db, logger: logger}
}

// GetByID returns a business by its ID.
func (r *BusinessRepository) GetByID(ctx context.Context, id string) (*models.Business, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)

	business, err := scanBusiness(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "business", id, persistence.ErrBusinessNotFound)
		}

		return nil, fmt.Errorf("failed to scan business: %w", err)
	}

	return business, nil
}

// Insert stores a new business, assigning an ID and timestamps when absent.
func (r *BusinessRepository) Insert(ctx context.Context, business *models.Business) error {
	if business.ID == "" {
		business.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if business.CreatedAt.IsZero() {
		business.CreatedAt = now
	}

	business.UpdatedAt = now

	extraJSON, err := json.Marshal(business.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal business extra: %w", err)
	}

	query := `
		INSERT INTO businesses (` + businessColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query,
		business.ID,
		business.UserID,
		business.Name,
		business.Email,
		business.Phone,
		business.Website,
		business.Address,
		business.Category,
		business.Rating,
		business.ReviewCount,
		business.LinkedInURL,
		business.Source,
		business.EmailSent,
		business.EmailSentAt,
		business.EmailStatus,
		extraJSON,
		business.CreatedAt,
		business.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Insert", "business", business.Name, persistence.ErrDuplicateBusiness)
		}

		return fmt.Errorf("failed to insert business: %w", err)
	}

	return nil
}

// UpdateEmailStatus records the outcome of an outreach email on the business row.
func (r *BusinessRepository) UpdateEmailStatus(ctx context.Context, id, status string, sentAt *time.Time) error {
	query := `
		UPDATE businesses SET
			email_status = $2,
			email_sent = email_sent OR $3,
			email_sent_at = COALESCE($4, email_sent_at),
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, status == models.EmailStatusSent, sentAt)
	if err != nil {
		return fmt.Errorf("failed to update business email status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("UpdateEmailStatus", "business", id, persistence.ErrBusinessNotFound)
	}

	return nil
}

// Find returns the businesses matching filter, oldest first.
func (r *BusinessRepository) Find(ctx context.Context, filter models.BusinessFilter) ([]*models.Business, error) {
	var (
		conditions = []string{"user_id = $1"}
		args       = []any{filter.UserID}
	)

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	if filter.NotEmailed {
		conditions = append(conditions, "email_sent = FALSE")
	}

	if filter.CreatedAfter != nil {
		args = append(args, *filter.CreatedAfter)
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", len(args)))
	}

	query := `SELECT ` + businessColumns + ` FROM businesses WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at ASC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	businesses := make([]*models.Business, 0)

	for rows.Next() {
		business, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}

		businesses = append(businesses, business)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating businesses: %w", err)
	}

	return businesses, nil
}

func scanBusiness(row scanner) (*models.Business, error) {
	var (
		business  models.Business
		rating    sql.NullFloat64
		sentAt    sql.NullTime
		extraJSON []byte
	)

	err := row.Scan(
		&business.ID,
		&business.UserID,
		&business.Name,
		&business.Email,
		&business.Phone,
		&business.Website,
		&business.Address,
		&business.Category,
		&rating,
		&business.ReviewCount,
		&business.LinkedInURL,
		&business.Source,
		&business.EmailSent,
		&sentAt,
		&business.EmailStatus,
		&extraJSON,
		&business.CreatedAt,
		&business.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rating.Valid {
		business.Rating = &rating.Float64
	}

	if sentAt.Valid {
		business.EmailSentAt = &sentAt.Time
	}

	if len(extraJSON) > 0 {
		err = json.Unmarshal(extraJSON, &business.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal business extra: %w", err)
		}
	}

	return &business, nil
}

// UserRepository reads user credentials.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, access_token, refresh_token, linkedin_cookie
		FROM users WHERE id = $1`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.AccessToken,
		&user.RefreshToken,
		&user.LinkedInCookie,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "user", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

// TemplateRepository reads email templates.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new email template repository.
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.EmailTemplate, error) {
	var template models.EmailTemplate

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, subject, body FROM email_templates WHERE id = $1`, id).Scan(
		&template.ID,
		&template.UserID,
		&template.Name,
		&template.Subject,
		&template.Body,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "email template", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan email template: %w", err)
	}

	return &template, nil
}

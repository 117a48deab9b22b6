// Package models defines the core domain models for lead outreach workflow automation.
package models

import "time"

// BusinessData is the snapshot of a business row exposed to workflow nodes.
// Keys are the camelCase field names the workflow builder uses ({business.name}, {business.website}).
type BusinessData map[string]any

// Business is a scraped or imported lead owned by a user.
type Business struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"      validate:"required"`
	Name        string         `json:"name"         validate:"required"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	Website     string         `json:"website"`
	Address     string         `json:"address"`
	Category    string         `json:"category"`
	Rating      *float64       `json:"rating,omitempty"`
	ReviewCount int            `json:"review_count"`
	LinkedInURL string         `json:"linkedin_url"`
	Source      string         `json:"source"`
	EmailSent   bool           `json:"email_sent"`
	EmailSentAt *time.Time     `json:"email_sent_at,omitempty"`
	EmailStatus string         `json:"email_status,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Data returns the resolver-facing snapshot of the business.
// Extra attributes are merged first so the typed columns always win.
func (b *Business) Data() BusinessData {
	data := make(BusinessData, len(b.Extra)+16)

	for k, v := range b.Extra {
		data[k] = v
	}

	data["id"] = b.ID
	data["userId"] = b.UserID
	data["name"] = b.Name
	data["email"] = b.Email
	data["phone"] = b.Phone
	data["website"] = b.Website
	data["address"] = b.Address
	data["category"] = b.Category
	data["reviewCount"] = b.ReviewCount
	data["linkedinUrl"] = b.LinkedInURL
	data["source"] = b.Source
	data["emailSent"] = b.EmailSent
	data["emailStatus"] = b.EmailStatus

	if b.Rating != nil {
		data["rating"] = *b.Rating
	} else {
		data["rating"] = nil
	}

	if b.EmailSentAt != nil {
		data["emailSentAt"] = b.EmailSentAt.Format(time.RFC3339)
	}

	return data
}

// Email statuses written on the business row by the email pipeline.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
	EmailStatusQueued = "queued"
)

// BusinessFilter selects businesses for trigger fan-out.
type BusinessFilter struct {
	UserID       string
	Category     string
	NotEmailed   bool
	CreatedAfter *time.Time
	Limit        int
}

// User holds the per-user credentials the outreach channels need.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	AccessToken    string `json:"-"`
	RefreshToken   string `json:"-"`
	LinkedInCookie string `json:"-"`
}

// EmailTemplate is a user-authored email with {token} placeholders.
type EmailTemplate struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailLog records one email attempt to a business.
type EmailLog struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BusinessID string     `json:"business_id"`
	TemplateID string     `json:"template_id,omitempty"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

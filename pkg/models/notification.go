package models

import "time"

// NotificationLevel is the severity shown on the dashboard.
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationSuccess NotificationLevel = "success"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// NotificationCategory groups notifications by the subsystem that raised them.
type NotificationCategory string

const (
	CategoryWorkflow NotificationCategory = "workflow"
	CategoryEmail    NotificationCategory = "email"
	CategoryScraping NotificationCategory = "scraping"
	CategorySystem   NotificationCategory = "system"
)

// Notification is a user-facing dashboard message.
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Level     NotificationLevel    `json:"level"`
	Category  NotificationCategory `json:"category"`
	Read      bool                 `json:"read"`
	CreatedAt time.Time            `json:"created_at"`
}

// ScrapingStatus is the lifecycle of a scraping job. Paused and stopped are written
// externally and observed by the scraping worker between iterations.
type ScrapingStatus string

const (
	ScrapingPending   ScrapingStatus = "pending"
	ScrapingRunning   ScrapingStatus = "running"
	ScrapingPaused    ScrapingStatus = "paused"
	ScrapingStopped   ScrapingStatus = "stopped"
	ScrapingCompleted ScrapingStatus = "completed"
	ScrapingFailed    ScrapingStatus = "failed"
)

// ScrapingJob tracks an open-ended scrape for a keyword/location pair.
type ScrapingJob struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"  validate:"required"`
	Keywords   []string       `json:"keywords" validate:"required,min=1"`
	Location   string         `json:"location"`
	Status     ScrapingStatus `json:"status"`
	Found      int            `json:"found"`
	Iterations int            `json:"iterations"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the job will not be picked up again.
func (j *ScrapingJob) IsTerminal() bool {
	return j.Status == ScrapingStopped || j.Status == ScrapingCompleted || j.Status == ScrapingFailed
}

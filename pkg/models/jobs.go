package models

// Queue names.
const (
	QueueEmail    = "email"
	QueueScraping = "scraping"
	QueueWorkflow = "workflow"
)

// WorkflowJob is the payload of the workflow queue. ExecutionID ties the job to its pending
// ExecutionLog. ResumeFromNodeID and Variables are set on delay continuations only.
type WorkflowJob struct {
	WorkflowID       string         `json:"workflowId"`
	UserID           string         `json:"userId"`
	BusinessID       string         `json:"businessId"`
	ExecutionID      string         `json:"executionId"`
	ResumeFromNodeID string         `json:"resumeFromNodeId,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
}

// EmailJob is the payload of the email queue.
type EmailJob struct {
	UserID     string `json:"userId"`
	BusinessID string `json:"businessId"`
	TemplateID string `json:"templateId,omitempty"`
	EmailLogID string `json:"emailLogId"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// ScrapingJobPayload is the payload of the scraping queue.
type ScrapingJobPayload struct {
	ScrapingJobID string `json:"scrapingJobId"`
	UserID        string `json:"userId"`
}

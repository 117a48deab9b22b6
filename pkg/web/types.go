package web

import "github.com/dukex/leadflow/pkg/models"

type QueueExecutionsRequest struct {
	BusinessIDs []string `json:"businessIds" validate:"required,min=1,dive,required"`
}

type QueueExecutionsResponse struct {
	WorkflowID   string   `json:"workflowId"`
	ExecutionIDs []string `json:"executionIds"`
}

type CreateScrapingJobRequest struct {
	UserID   string   `json:"userId"   validate:"required"`
	Keywords []string `json:"keywords" validate:"required,min=1"`
	Location string   `json:"location"`
}

// UpdateScrapingJobRequest carries the external pause, resume and stop signal.
type UpdateScrapingJobRequest struct {
	Status models.ScrapingStatus `json:"status" validate:"required,oneof=paused running stopped"`
}

// QueueEmailRequest queues one email to a business. Either TemplateID or Subject and Body
// must be set; both are rendered against the business before queueing.
type QueueEmailRequest struct {
	UserID     string `json:"userId"     validate:"required"`
	BusinessID string `json:"businessId" validate:"required"`
	TemplateID string `json:"templateId"`
	Subject    string `json:"subject"    validate:"required_without=TemplateID"`
	Body       string `json:"body"       validate:"required_without=TemplateID"`
}

type QueueEmailResponse struct {
	EmailLogID string `json:"emailLogId"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
}

type ValidateWorkflowResponse struct {
	Valid bool `json:"valid"`
	Nodes int  `json:"nodes"`
	Edges int  `json:"edges"`
}

type ExecutionEventsResponse struct {
	ExecutionID string                 `json:"executionId"`
	Status      models.ExecutionStatus `json:"status"`
	Events      []FeedEntry            `json:"events"`
}

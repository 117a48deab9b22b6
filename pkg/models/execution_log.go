package models

import "time"

// ExecutionStatus is the lifecycle of one (workflow, business) run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
)

// IsTerminal reports whether the status closes the record.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusSuspended
}

// ExecutionLog is the persisted audit record of a run. It is created pending when the job is
// enqueued and closed exactly once by the worker.
type ExecutionLog struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	BusinessID        string          `json:"business_id"`
	UserID            string          `json:"user_id"`
	Status            ExecutionStatus `json:"status"`
	Logs              []string        `json:"logs"`
	State             map[string]any  `json:"state,omitempty"`
	Error             string          `json:"error,omitempty"`
	Attempt           int             `json:"attempt"`
	ResumeFromNodeID  string          `json:"resume_from_node_id,omitempty"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// Package events defines the execution lifecycle events published by the workflow worker.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution lifecycle event, keyed by execution id.
const Topic = "leadflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionSuspendedEvent EventType = "execution.suspended"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	BusinessID  string    `json:"business_id"`
	UserID      string    `json:"user_id"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

// NewBaseEvent stamps a fresh id and the current time.
func NewBaseEvent(eventType EventType, executionID, workflowID, businessID, userID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		BusinessID:  businessID,
		UserID:      userID,
	}
}

// Base exposes the common fields of any lifecycle event.
func (e BaseEvent) Base() BaseEvent {
	return e
}

type ExecutionStarted struct {
	BaseEvent

	Attempt          int    `json:"attempt"`
	ResumeFromNodeID string `json:"resume_from_node_id,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
	LogLines int           `json:"log_lines"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionSuspended is published once per delay continuation enqueued by a run.
type ExecutionSuspended struct {
	BaseEvent

	NodeID            string        `json:"node_id"`
	ResumeAfter       time.Duration `json:"resume_after"`
	ContinuationID    string        `json:"continuation_id"`
	ContinuationJobID string        `json:"continuation_job_id"`
}

func (e ExecutionSuspended) GetType() EventType {
	return ExecutionSuspendedEvent
}

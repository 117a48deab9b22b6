package models

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType selects how a trigger picks the businesses it runs a workflow for.
type TriggerType string

const (
	TriggerTypeSchedule        TriggerType = "schedule"
	TriggerTypeNewBusiness     TriggerType = "new_business"
	TriggerTypeDelayCompletion TriggerType = "delay_completion"
)

// FallbackTriggerInterval is used when a trigger has no cron expression or it does not parse.
const FallbackTriggerInterval = 24 * time.Hour

// DefaultTriggerBatchSize bounds how many businesses one firing enqueues.
const DefaultTriggerBatchSize = 50

type TriggerConfig struct {
	// Cron uses the standard 5-field format (minute hour day month weekday), evaluated in UTC
	// unless prefixed with CRON_TZ=<zone>.
	Cron      string `json:"cron,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

// TriggerDefinition initiates workflow runs. Only the scheduler loop mutates LastRunAt and NextRunAt.
type TriggerDefinition struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflow_id"  validate:"required"`
	UserID      string        `json:"user_id"`
	TriggerType TriggerType   `json:"trigger_type" validate:"required,oneof=schedule new_business delay_completion"`
	Config      TriggerConfig `json:"config"`
	IsActive    bool          `json:"is_active"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time    `json:"next_run_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ComputeNextRunAt returns the next firing after now from the cron expression,
// or now plus FallbackTriggerInterval when there is none or it fails to parse.
func (t *TriggerDefinition) ComputeNextRunAt(now time.Time) time.Time {
	if t.Config.Cron == "" {
		return now.Add(FallbackTriggerInterval)
	}

	spec := t.Config.Cron
	if !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		spec = "CRON_TZ=UTC " + spec
	}

	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return now.Add(FallbackTriggerInterval)
	}

	return schedule.Next(now)
}

// IsDue reports whether the trigger should fire at now. A trigger never scheduled is due.
func (t *TriggerDefinition) IsDue(now time.Time) bool {
	return t.IsActive && (t.NextRunAt == nil || !t.NextRunAt.After(now))
}

// BatchSize returns the configured fan-out bound.
func (t *TriggerDefinition) BatchSize() int {
	if t.Config.BatchSize > 0 {
		return t.Config.BatchSize
	}

	return DefaultTriggerBatchSize
}

// TriggerExecution statuses.
const (
	TriggerExecutionQueued = "queued"
	TriggerExecutionFailed = "failed"
)

// TriggerExecution records one business processed by one trigger firing.
type TriggerExecution struct {
	ID          string    `json:"id"`
	TriggerID   string    `json:"trigger_id"`
	WorkflowID  string    `json:"workflow_id"`
	BusinessID  string    `json:"business_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ExecutedAt  time.Time `json:"executed_at"`
}

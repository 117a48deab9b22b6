// Package queue provides durable named job queues with per-job retry and delayed delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultAttempts     = 3
	DefaultBackoff      = 2 * time.Second
	DefaultPollTimeout  = time.Second
	DefaultKeepComplete = 100
	DefaultKeepFailed   = 500
)

var ErrBrokerClosed = errors.New("broker closed")

// EnqueueOptions controls delivery of one job. Zero values take the defaults.
type EnqueueOptions struct {
	Attempts int
	Backoff  time.Duration
	Delay    time.Duration
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}

	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}

	return o
}

// Job is one unit of work. Attempt counts deliveries so far, including the current one.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     time.Duration   `json:"backoff"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	err := json.Unmarshal(j.Payload, v)
	if err != nil {
		return fmt.Errorf("failed to decode %s job %s: %w", j.Queue, j.ID, err)
	}

	return nil
}

// RetryDelay is Backoff * 2^(attempt-1).
func (j *Job) RetryDelay() time.Duration {
	attempt := max(j.Attempt, 1)

	return j.Backoff * time.Duration(1<<(attempt-1))
}

// CanRetry reports whether another delivery is allowed after the current one fails.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// Broker delivers jobs at least once.
type Broker interface {
	Enqueue(ctx context.Context, queue, name string, payload any, opts EnqueueOptions) (string, error)
	// Reserve blocks up to the broker's poll timeout and returns nil when nothing is ready.
	Reserve(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Fail records err and schedules a retry when attempts remain.
	Fail(ctx context.Context, job *Job, err error) (retrying bool, ferr error)
	Close() error
}

func newJob(queue, name string, payload any, opts EnqueueOptions, now time.Time) (*Job, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s job payload: %w", queue, err)
	}

	opts = opts.withDefaults()

	return &Job{
		ID:          uuid.New().String(),
		Queue:       queue,
		Name:        name,
		Payload:     encoded,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		CreatedAt:   now,
	}, nil
}

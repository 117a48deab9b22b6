package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes one job. A returned error hands the job back to the broker for retry.
type Handler func(ctx context.Context, job *Job) error

// FailedHandler is called once a job has exhausted its attempts.
type FailedHandler func(ctx context.Context, job *Job, err error)

// Pool runs Concurrency consumers of one queue.
type Pool struct {
	Broker      Broker
	Queue       string
	Concurrency int
	Handler     Handler
	OnFailed    FailedHandler
	Logger      *slog.Logger
	// ErrorDelay is the pause after a broker error before reserving again.
	ErrorDelay time.Duration
}

// Run blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	concurrency := max(p.Concurrency, 1)

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "queue_pool", "queue", p.Queue)
	logger.InfoContext(ctx, "Starting queue consumers", "concurrency", concurrency)

	g, ctx := errgroup.WithContext(ctx)

	for i := range concurrency {
		consumerLogger := logger.With("consumer", i)

		g.Go(func() error {
			return p.consume(ctx, consumerLogger)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (p *Pool) consume(ctx context.Context, logger *slog.Logger) error {
	errorDelay := p.ErrorDelay
	if errorDelay <= 0 {
		errorDelay = time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := p.Broker.Reserve(ctx, p.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, ErrBrokerClosed) {
				return nil
			}

			logger.ErrorContext(ctx, "Failed to reserve job", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorDelay):
			}

			continue
		}

		if job == nil {
			continue
		}

		p.process(ctx, job, logger.With("job_id", job.ID, "attempt", job.Attempt))
	}
}

func (p *Pool) process(ctx context.Context, job *Job, logger *slog.Logger) {
	err := p.handle(ctx, job)
	if err == nil {
		cerr := p.Broker.Complete(ctx, job)
		if cerr != nil {
			logger.ErrorContext(ctx, "Failed to complete job", "error", cerr)
		}

		return
	}

	retrying, ferr := p.Broker.Fail(ctx, job, err)
	if ferr != nil {
		logger.ErrorContext(ctx, "Failed to record job failure", "error", ferr, "job_error", err)

		return
	}

	if retrying {
		logger.WarnContext(ctx, "Job failed, retry scheduled", "error", err, "retry_in", job.RetryDelay())

		return
	}

	logger.ErrorContext(ctx, "Job failed permanently", "error", err, "attempts", job.Attempt)

	if p.OnFailed != nil {
		p.OnFailed(ctx, job, err)
	}
}

func (p *Pool) handle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s job handler: %v", p.Queue, r)
		}
	}()

	return p.Handler(ctx, job)
}

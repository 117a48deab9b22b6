package main

import (
	"context"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/workers"
	"golang.org/x/sync/errgroup"
)

// Manager runs one consumer pool per queue. A nil worker leaves its queue unconsumed.
type Manager struct {
	Logger   *slog.Logger
	Broker   queue.Broker
	Failures *workers.FailureHandler

	Workflow *workers.WorkflowWorker
	Email    *workers.EmailWorker
	Scraping *workers.ScrapingWorker

	WorkflowConcurrency int
	EmailConcurrency    int
	ScrapingConcurrency int
}

// Pools lists the consumer pools for the configured workers.
func (m *Manager) Pools() []*queue.Pool {
	var pools []*queue.Pool

	add := func(name string, concurrency int, handler queue.Handler) {
		pools = append(pools, &queue.Pool{
			Broker:      m.Broker,
			Queue:       name,
			Concurrency: concurrency,
			Handler:     handler,
			OnFailed:    m.Failures.OnFailed,
			Logger:      m.Logger,
		})
	}

	if m.Workflow != nil {
		add(models.QueueWorkflow, m.WorkflowConcurrency, m.Workflow.Handle)
	}

	if m.Email != nil {
		add(models.QueueEmail, m.EmailConcurrency, m.Email.Handle)
	}

	if m.Scraping != nil {
		add(models.QueueScraping, m.ScrapingConcurrency, m.Scraping.Handle)
	}

	return pools
}

// Run blocks until ctx is done or a pool fails.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, pool := range m.Pools() {
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}

	err := g.Wait()

	m.Logger.InfoContext(ctx, "Worker stopped")

	return err
}

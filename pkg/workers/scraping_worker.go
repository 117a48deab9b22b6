package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/notify"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/queue"
)

const (
	MaxScrapingIterations = 50
	ScrapingPageSize      = 20
	DefaultPausePoll      = 5 * time.Second
)

// ScrapingWorker pages through a scraper until it runs dry, the iteration cap is hit or the job
// is stopped externally.
type ScrapingWorker struct {
	jobs       persistence.ScrapingJobRepository
	businesses persistence.BusinessRepository
	scraper    protocol.Scraper
	notifier   *notify.Notifier
	logger     *slog.Logger

	MaxIterations int
	PageSize      int
	PausePoll     time.Duration
}

func NewScrapingWorker(store persistence.Persistence, scraper protocol.Scraper, notifier *notify.Notifier, logger *slog.Logger) *ScrapingWorker {
	return &ScrapingWorker{
		jobs:          store.ScrapingJobRepository(),
		businesses:    store.BusinessRepository(),
		scraper:       scraper,
		notifier:      notifier,
		logger:        logger.With("module", "scraping_worker"),
		MaxIterations: MaxScrapingIterations,
		PageSize:      ScrapingPageSize,
		PausePoll:     DefaultPausePoll,
	}
}

func (w *ScrapingWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload models.ScrapingJobPayload

	err := job.Decode(&payload)
	if err != nil {
		return err
	}

	logger := w.logger.With("scraping_job_id", payload.ScrapingJobID, "job_id", job.ID)

	scraping, err := w.jobs.GetByID(ctx, payload.ScrapingJobID)
	if err != nil {
		return fmt.Errorf("failed to load scraping job: %w", err)
	}

	if scraping.IsTerminal() {
		logger.InfoContext(ctx, "Scraping job already finished", "status", scraping.Status)

		return nil
	}

	// A job paused before pickup stays paused until the user resumes it.
	if scraping.Status != models.ScrapingPaused {
		err = w.jobs.UpdateStatus(ctx, scraping.ID, models.ScrapingRunning, "")
		if err != nil {
			return fmt.Errorf("failed to mark scraping job running: %w", err)
		}
	}

	runErr := w.scrape(ctx, logger, scraping)

	final, err := w.jobs.GetByID(ctx, scraping.ID)
	if err != nil {
		return fmt.Errorf("failed to reload scraping job: %w", err)
	}

	switch {
	case runErr != nil && !job.CanRetry():
		final.Status = models.ScrapingFailed
		final.Error = runErr.Error()
	case runErr != nil:
		return runErr
	case final.Status != models.ScrapingStopped:
		final.Status = models.ScrapingCompleted
	}

	err = w.jobs.UpdateStatus(ctx, final.ID, final.Status, final.Error)
	if err != nil {
		return fmt.Errorf("failed to finish scraping job: %w", err)
	}

	logger.InfoContext(ctx, "Scraping finished", "status", final.Status, "found", final.Found, "iterations", final.Iterations)

	if nerr := w.notifier.ScrapingFinished(ctx, final); nerr != nil {
		logger.ErrorContext(ctx, "Failed to notify scraping result", "error", nerr)
	}

	return runErr
}

// scrape runs the paging loop, resuming from the progress already stored on the job.
func (w *ScrapingWorker) scrape(ctx context.Context, logger *slog.Logger, scraping *models.ScrapingJob) error {
	found := scraping.Found
	iterations := scraping.Iterations

	for iterations < w.MaxIterations {
		current, err := w.jobs.GetByID(ctx, scraping.ID)
		if err != nil {
			return fmt.Errorf("failed to read scraping job status: %w", err)
		}

		switch current.Status {
		case models.ScrapingStopped:
			logger.InfoContext(ctx, "Scraping stopped by user")

			return nil
		case models.ScrapingPaused:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.PausePoll):
			}

			continue
		}

		page, err := w.scraper.Scrape(ctx, protocol.ScrapeRequest{
			Keywords: scraping.Keywords,
			Location: scraping.Location,
			Limit:    w.PageSize,
			Offset:   found,
		}, scraping.UserID)
		if err != nil {
			return fmt.Errorf("scrape iteration %d: %w", iterations+1, err)
		}

		iterations++

		if len(page) == 0 {
			return w.jobs.UpdateProgress(ctx, scraping.ID, found, iterations)
		}

		for i := range page {
			business := page[i]
			business.UserID = scraping.UserID

			err := w.businesses.Insert(ctx, &business)
			if err != nil && !errors.Is(err, persistence.ErrDuplicateBusiness) {
				return fmt.Errorf("failed to store business: %w", err)
			}
		}

		found += len(page)

		err = w.jobs.UpdateProgress(ctx, scraping.ID, found, iterations)
		if err != nil {
			return fmt.Errorf("failed to update scraping progress: %w", err)
		}

		logger.DebugContext(ctx, "Scraping progress", "found", found, "iterations", iterations)
	}

	return nil
}

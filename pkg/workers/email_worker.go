package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/email"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/queue"
)

const DefaultDailyEmailLimit = 50

var ErrNoMailbox = errors.New("user has no connected mailbox")

// EmailWorker delivers queued emails within the user's daily sending cap.
type EmailWorker struct {
	broker     queue.Broker
	users      persistence.UserRepository
	emailLogs  persistence.EmailLogRepository
	businesses persistence.BusinessRepository
	sender     protocol.EmailSender
	logger     *slog.Logger

	// DailyLimit caps sent emails per user per local day. Zero disables the cap.
	DailyLimit int
	Location   *time.Location
	Now        func() time.Time
	NewBackOff func() backoff.BackOff
}

func NewEmailWorker(broker queue.Broker, store persistence.Persistence, sender protocol.EmailSender, logger *slog.Logger) *EmailWorker {
	return &EmailWorker{
		broker:     broker,
		users:      store.UserRepository(),
		emailLogs:  store.EmailLogRepository(),
		businesses: store.BusinessRepository(),
		sender:     sender,
		logger:     logger.With("module", "email_worker"),
		DailyLimit: DefaultDailyEmailLimit,
		Location:   time.Local,
		Now:        time.Now,
		NewBackOff: email.DefaultBackOff,
	}
}

// NextMidnight returns the start of the day after now in loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	year, month, day := local.Date()

	return time.Date(year, month, day+1, 0, 0, 0, 0, loc)
}

func startOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	year, month, day := local.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func (w *EmailWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload models.EmailJob

	err := job.Decode(&payload)
	if err != nil {
		return err
	}

	logger := w.logger.With("user_id", payload.UserID, "business_id", payload.BusinessID, "email_log_id", payload.EmailLogID, "job_id", job.ID)
	now := w.Now()

	if w.DailyLimit > 0 {
		sent, err := w.emailLogs.CountSentByUserSince(ctx, payload.UserID, startOfDay(now, w.Location))
		if err != nil {
			return fmt.Errorf("failed to count sent emails: %w", err)
		}

		if sent >= w.DailyLimit {
			delay := NextMidnight(now, w.Location).Sub(now)

			_, err = w.broker.Enqueue(ctx, models.QueueEmail, job.Name, payload, queue.EnqueueOptions{
				Attempts: job.MaxAttempts,
				Backoff:  job.Backoff,
				Delay:    delay,
			})
			if err != nil {
				return fmt.Errorf("failed to reschedule email: %w", err)
			}

			logger.InfoContext(ctx, "Daily email limit reached, rescheduled", "sent", sent, "limit", w.DailyLimit, "delay", delay)

			return nil
		}
	}

	user, err := w.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if user.AccessToken == "" {
		w.record(ctx, logger, payload, models.EmailStatusFailed, ErrNoMailbox.Error(), nil)

		return ErrNoMailbox
	}

	msg := protocol.EmailMessage{
		To:          payload.To,
		Subject:     payload.Subject,
		Body:        payload.Body,
		AccessToken: user.AccessToken,
	}

	err = email.SendWithRetry(ctx, w.sender, msg, w.NewBackOff())
	if err != nil {
		w.record(ctx, logger, payload, models.EmailStatusFailed, err.Error(), nil)

		return fmt.Errorf("send to %s: %w", payload.To, err)
	}

	sentAt := w.Now().UTC()
	w.record(ctx, logger, payload, models.EmailStatusSent, "", &sentAt)
	logger.InfoContext(ctx, "Email sent", "to", payload.To)

	return nil
}

func (w *EmailWorker) record(ctx context.Context, logger *slog.Logger, payload models.EmailJob, status, errMessage string, sentAt *time.Time) {
	if payload.EmailLogID != "" {
		err := w.emailLogs.UpdateStatus(ctx, payload.EmailLogID, status, errMessage, sentAt)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to update email log", "error", err)
		}
	}

	if payload.BusinessID != "" {
		err := w.businesses.UpdateEmailStatus(ctx, payload.BusinessID, status, sentAt)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to update business email status", "error", err)
		}
	}
}

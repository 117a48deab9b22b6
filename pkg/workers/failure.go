package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dukex/leadflow/pkg/notify"
	"github.com/dukex/leadflow/pkg/queue"
)

// FailureHandler reports jobs that exhausted their retries to their owner.
type FailureHandler struct {
	notifier *notify.Notifier
	logger   *slog.Logger
}

func NewFailureHandler(notifier *notify.Notifier, logger *slog.Logger) *FailureHandler {
	return &FailureHandler{notifier: notifier, logger: logger.With("module", "failure_handler")}
}

// OnFailed matches queue.FailedHandler.
func (h *FailureHandler) OnFailed(ctx context.Context, job *queue.Job, err error) {
	var owner struct {
		UserID string `json:"userId"`
	}

	if uerr := json.Unmarshal(job.Payload, &owner); uerr != nil {
		h.logger.WarnContext(ctx, "Failed job has an unreadable payload", "job_id", job.ID, "error", uerr)
	}

	nerr := h.notifier.JobFailed(ctx, owner.UserID, job.Queue, job.Name, err)
	if nerr != nil {
		h.logger.ErrorContext(ctx, "Failed to report job failure", "job_id", job.ID, "error", nerr)
	}
}

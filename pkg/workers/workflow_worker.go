package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/notify"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WorkflowWorker runs one workflow against one business per job.
type WorkflowWorker struct {
	workflows  persistence.WorkflowRepository
	businesses persistence.BusinessRepository
	executions persistence.ExecutionLogRepository
	executor   *workflow.Executor
	dispatcher *Dispatcher
	notifier   *notify.Notifier
	publisher  eventbus.EventPublisher
	leaser     queue.Leaser
	tracer     trace.Tracer
	logger     *slog.Logger

	WorkerID string
	LeaseTTL time.Duration
	Now      func() time.Time
}

type WorkflowWorkerOption func(*WorkflowWorker)

// WithEventPublisher publishes execution lifecycle events.
func WithEventPublisher(publisher eventbus.EventPublisher) WorkflowWorkerOption {
	return func(w *WorkflowWorker) { w.publisher = publisher }
}

// WithLeaser allows at most one concurrent run per (workflow, business).
func WithLeaser(leaser queue.Leaser) WorkflowWorkerOption {
	return func(w *WorkflowWorker) { w.leaser = leaser }
}

func WithWorkerTracer(tracer trace.Tracer) WorkflowWorkerOption {
	return func(w *WorkflowWorker) { w.tracer = tracer }
}

func WithWorkerID(id string) WorkflowWorkerOption {
	return func(w *WorkflowWorker) { w.WorkerID = id }
}

func NewWorkflowWorker(
	store persistence.Persistence,
	executor *workflow.Executor,
	dispatcher *Dispatcher,
	notifier *notify.Notifier,
	logger *slog.Logger,
	opts ...WorkflowWorkerOption,
) *WorkflowWorker {
	w := &WorkflowWorker{
		workflows:  store.WorkflowRepository(),
		businesses: store.BusinessRepository(),
		executions: store.ExecutionLogRepository(),
		executor:   executor,
		dispatcher: dispatcher,
		notifier:   notifier,
		publisher:  eventbus.Nop{},
		tracer:     otelhelper.Noop(),
		logger:     logger.With("module", "workflow_worker"),
		LeaseTTL:   queue.DefaultLeaseTTL,
		Now:        time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Handle is the queue handler. It returns an error when the run did not succeed so the broker
// retries it; the execution log is closed on success, suspension or the last attempt.
func (w *WorkflowWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload models.WorkflowJob

	err := job.Decode(&payload)
	if err != nil {
		return err
	}

	logger := w.logger.With(
		"workflow_id", payload.WorkflowID,
		"business_id", payload.BusinessID,
		"execution_id", payload.ExecutionID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)

	if w.leaser != nil {
		release, err := w.leaser.Acquire(ctx, queue.RunLeaseKey(payload.WorkflowID, payload.BusinessID), w.LeaseTTL)
		if err != nil {
			logger.InfoContext(ctx, "Run already in progress, retrying later")

			return err
		}

		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				logger.WarnContext(ctx, "Failed to release run lease", "error", rerr)
			}
		}()
	}

	record, err := w.startExecution(ctx, payload)
	if err != nil {
		return err
	}

	if record == nil {
		logger.InfoContext(ctx, "Execution already closed, skipping redelivery")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.execution",
		attribute.String(otelhelper.WorkflowIDKey, payload.WorkflowID),
		attribute.String(otelhelper.BusinessIDKey, payload.BusinessID),
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.WorkerIDKey, w.WorkerID),
	)
	defer span.End()

	w.publish(ctx, record.ID, events.ExecutionStarted{
		BaseEvent:        w.baseEvent(events.ExecutionStartedEvent, record),
		Attempt:          record.Attempt,
		ResumeFromNodeID: payload.ResumeFromNodeID,
	})

	started := w.Now()
	wf, result := w.run(ctx, payload, record)
	final := result.Success || !job.CanRetry()

	if final {
		w.continueSuspended(ctx, logger, record, result)
	}

	err = w.finishExecution(ctx, record, result, final)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	otelhelper.SetRunOutcome(span, string(record.Status), len(result.Failures), len(result.Suspensions))

	duration := w.Now().Sub(started)

	if !result.Success {
		runErr := fmt.Errorf("workflow %s failed: %s", payload.WorkflowID, result.ErrorMessage())
		otelhelper.SetError(span, runErr)
		logger.WarnContext(ctx, "Workflow execution failed", "error", result.ErrorMessage(), "final", final)

		w.publish(ctx, record.ID, events.ExecutionFailed{
			BaseEvent: w.baseEvent(events.ExecutionFailedEvent, record),
			Error:     result.ErrorMessage(),
			Attempt:   record.Attempt,
			Duration:  duration,
		})

		if final && wf != nil {
			if nerr := w.notifier.WorkflowFailed(ctx, wf, record); nerr != nil {
				logger.ErrorContext(ctx, "Failed to notify workflow failure", "error", nerr)
			}
		}

		return runErr
	}

	err = w.workflows.RecordRun(ctx, payload.WorkflowID, w.Now().UTC())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record workflow run", "error", err)
	}

	logger.InfoContext(ctx, "Workflow execution finished", "status", record.Status, "duration", duration)

	w.publish(ctx, record.ID, events.ExecutionCompleted{
		BaseEvent: w.baseEvent(events.ExecutionCompletedEvent, record),
		Duration:  duration,
		LogLines:  len(record.Logs),
	})

	if record.Status == models.ExecutionStatusSuccess {
		if nerr := w.notifier.WorkflowCompleted(ctx, wf, record); nerr != nil {
			logger.ErrorContext(ctx, "Failed to notify workflow completion", "error", nerr)
		}
	}

	return nil
}

// startExecution marks the pending record running. It returns nil when the record was already
// closed by an earlier delivery.
func (w *WorkflowWorker) startExecution(ctx context.Context, payload models.WorkflowJob) (*models.ExecutionLog, error) {
	record, err := w.executions.GetByID(ctx, payload.ExecutionID)

	switch {
	case errors.Is(err, persistence.ErrExecutionNotFound):
		record = &models.ExecutionLog{
			ID:               payload.ExecutionID,
			WorkflowID:       payload.WorkflowID,
			BusinessID:       payload.BusinessID,
			UserID:           payload.UserID,
			ResumeFromNodeID: payload.ResumeFromNodeID,
		}

		err = w.executions.Create(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("failed to create execution log: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load execution log: %w", err)
	}

	if record.CompletedAt != nil {
		return nil, nil
	}

	now := w.Now().UTC()
	record.Status = models.ExecutionStatusRunning
	record.Attempt++
	record.StartedAt = &now
	record.Error = ""

	err = w.executions.Update(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to mark execution running: %w", err)
	}

	return record, nil
}

// run loads fresh workflow and business rows and walks the graph.
func (w *WorkflowWorker) run(ctx context.Context, payload models.WorkflowJob, record *models.ExecutionLog) (*models.Workflow, workflow.Result) {
	wf, err := w.workflows.GetByID(ctx, payload.WorkflowID)
	if err != nil {
		return nil, loadFailure(fmt.Errorf("failed to load workflow: %w", err))
	}

	var business *models.Business

	if payload.BusinessID != "" {
		business, err = w.businesses.GetByID(ctx, payload.BusinessID)
		if err != nil {
			return wf, loadFailure(fmt.Errorf("failed to load business: %w", err))
		}
	}

	ec := models.NewExecutionContext(record.ID, wf.ID, payload.UserID, business, payload.Variables)

	if payload.ResumeFromNodeID != "" {
		return wf, w.executor.Resume(ctx, wf.Graph, ec, payload.ResumeFromNodeID)
	}

	return wf, w.executor.Execute(ctx, wf.Graph, ec)
}

func loadFailure(err error) workflow.Result {
	return workflow.Result{
		Logs: []string{"❌ Error: " + err.Error()},
		Err:  err,
	}
}

// continueSuspended enqueues one delayed continuation per suspended branch.
func (w *WorkflowWorker) continueSuspended(ctx context.Context, logger *slog.Logger, record *models.ExecutionLog, result workflow.Result) {
	for _, suspension := range result.Suspensions {
		continuation, err := w.dispatcher.QueueContinuation(ctx, record, suspension, result.State)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to enqueue delay continuation", "node_id", suspension.NodeID, "error", err)

			continue
		}

		logger.InfoContext(ctx, "Delay continuation queued",
			"node_id", suspension.NodeID,
			"resume_after", suspension.ResumeAfter,
			"continuation_id", continuation.ExecutionID,
		)

		w.publish(ctx, record.ID, events.ExecutionSuspended{
			BaseEvent:         w.baseEvent(events.ExecutionSuspendedEvent, record),
			NodeID:            suspension.NodeID,
			ResumeAfter:       suspension.ResumeAfter,
			ContinuationID:    continuation.ExecutionID,
			ContinuationJobID: continuation.JobID,
		})
	}
}

func statusOf(result workflow.Result) models.ExecutionStatus {
	switch {
	case !result.Success:
		return models.ExecutionStatusFailed
	case result.Suspended():
		return models.ExecutionStatusSuspended
	default:
		return models.ExecutionStatusSuccess
	}
}

func (w *WorkflowWorker) finishExecution(ctx context.Context, record *models.ExecutionLog, result workflow.Result, final bool) error {
	record.Status = statusOf(result)
	record.Logs = result.Logs
	record.State = result.State
	record.Error = result.ErrorMessage()

	if final {
		now := w.Now().UTC()
		record.CompletedAt = &now
	}

	err := w.executions.Update(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to save execution log: %w", err)
	}

	return nil
}

func (w *WorkflowWorker) baseEvent(eventType events.EventType, record *models.ExecutionLog) events.BaseEvent {
	base := events.NewBaseEvent(eventType, record.ID, record.WorkflowID, record.BusinessID, record.UserID)
	base.WorkerID = w.WorkerID

	return base
}

func (w *WorkflowWorker) publish(ctx context.Context, key string, event eventbus.Event) {
	err := w.publisher.Publish(ctx, key, event)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to publish execution event", "event_type", event.GetType(), "error", err)
	}
}

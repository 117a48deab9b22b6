package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/dukex/leadflow/pkg/workers"
	"github.com/dukex/leadflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkflowWorker_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.saveWorkflow(t, testutil.Graph(
		[]models.Node{startNode(), setNode("greet", map[string]any{"greeting": "hi"})},
		testutil.Edge("start", "greet"),
	))

	executionID, err := f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)

	pending, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, pending.Status)

	require.NoError(t, f.worker.Handle(ctx, f.reserve(t, models.QueueWorkflow)))

	record, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, record.Status)
	assert.Equal(t, 1, record.Attempt)
	assert.NotNil(t, record.StartedAt)
	assert.NotNil(t, record.CompletedAt)
	assert.Empty(t, record.Error)
	assert.Equal(t, "hi", record.State["greeting"])
	assert.Contains(t, record.Logs, "Executing start node: Start")

	wf, err := f.store.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.ExecutionCount)
	assert.NotNil(t, wf.LastRunAt)

	notifications, err := f.store.NotificationRepository().ListByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationSuccess, notifications[0].Level)

	assert.Equal(t, []events.EventType{events.ExecutionStartedEvent, events.ExecutionCompletedEvent}, f.publisher.types())
}

func TestWorkflowWorker_FailureRetriesThenCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.registry.RegisterNode(protocol.NodeHandlerFunc{
		NodeType: models.NodeTypeAPIRequest,
		Fn: func(context.Context, models.Node, *models.ExecutionContext) (protocol.Outcome, error) {
			return protocol.Outcome{}, errors.New("crm down")
		},
	})

	call := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{URL: "https://crm.test"}, testutil.WithID("crm"))
	f.saveWorkflow(t, testutil.Graph([]models.Node{startNode(), call}, testutil.Edge("start", "crm")))

	f.dispatcher.Options = queue.EnqueueOptions{Attempts: 2}
	executionID, err := f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)

	job := f.reserve(t, models.QueueWorkflow)
	err = f.worker.Handle(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm down")

	record, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Nil(t, record.CompletedAt, "a retrying run keeps its record open")

	notifications, err := f.store.NotificationRepository().ListByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, notifications)

	job.Attempt = 2
	require.Error(t, f.worker.Handle(ctx, job))

	record, err = f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Equal(t, 2, record.Attempt)
	assert.NotNil(t, record.CompletedAt)
	assert.Contains(t, record.Error, "crm down")
	assert.Contains(t, record.Logs, "❌ Error: crm down")

	notifications, err = f.store.NotificationRepository().ListByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationError, notifications[0].Level)

	wf, err := f.store.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Zero(t, wf.ExecutionCount)
}

func TestWorkflowWorker_DelayContinuation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wait := testutil.CreateTestNode(models.NodeTypeDelay, models.DelayConfig{Hours: 2}, testutil.WithID("wait"), testutil.WithLabel("wait"))
	f.saveWorkflow(t, testutil.Graph(
		[]models.Node{startNode(), setNode("pre", map[string]any{"stage": "pre", "kept": true}), wait, setNode("post", map[string]any{"stage": "post"})},
		testutil.Edge("start", "pre"),
		testutil.Edge("pre", "wait"),
		testutil.Edge("wait", "post"),
	))

	executionID, err := f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, f.reserve(t, models.QueueWorkflow)))

	parent, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuspended, parent.Status)
	assert.NotNil(t, parent.CompletedAt)
	assert.Equal(t, "pre", parent.State["stage"])

	delayed := f.broker.Delayed(models.QueueWorkflow)
	require.Len(t, delayed, 1)
	assert.InDelta(t, (2 * time.Hour).Seconds(), time.Until(delayed[0].DueAt).Seconds(), 60)

	var payload models.WorkflowJob
	continuation := delayed[0].Job
	require.NoError(t, continuation.Decode(&payload))
	assert.Equal(t, "wait", payload.ResumeFromNodeID)
	assert.Equal(t, "pre", payload.Variables["stage"])
	assert.NotEqual(t, executionID, payload.ExecutionID)

	child, err := f.store.ExecutionLogRepository().GetByID(ctx, payload.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, child.Status)
	assert.Equal(t, executionID, child.ParentExecutionID)
	assert.Equal(t, "wait", child.ResumeFromNodeID)

	continuation.Attempt = 1
	require.NoError(t, f.worker.Handle(ctx, &continuation))

	child, err = f.store.ExecutionLogRepository().GetByID(ctx, payload.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, child.Status)
	assert.Equal(t, "post", child.State["stage"])
	assert.Equal(t, true, child.State["kept"])
	assert.Contains(t, child.Logs, "▶️ Resuming after delay node: wait")
	assert.NotContains(t, child.Logs, "Executing start node: Start")

	wf, err := f.store.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, wf.ExecutionCount)

	assert.Contains(t, f.publisher.types(), events.ExecutionSuspendedEvent)
}

func TestWorkflowWorker_SkipsClosedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.saveWorkflow(t, testutil.Graph([]models.Node{startNode()}))

	_, err := f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)

	job := f.reserve(t, models.QueueWorkflow)
	require.NoError(t, f.worker.Handle(ctx, job))
	require.NoError(t, f.worker.Handle(ctx, job))

	wf, err := f.store.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.ExecutionCount)
}

func TestWorkflowWorker_MissingWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dispatcher.Options = queue.EnqueueOptions{Attempts: 1}
	executionID, err := f.dispatcher.QueueWorkflowExecution(ctx, "missing", "user-1", f.business.ID)
	require.NoError(t, err)

	require.Error(t, f.worker.Handle(ctx, f.reserve(t, models.QueueWorkflow)))

	record, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.NotNil(t, record.CompletedAt)
	assert.Contains(t, record.Error, "failed to load workflow")
}

func TestWorkflowWorker_SingleFlightLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.saveWorkflow(t, testutil.Graph([]models.Node{startNode()}))

	worker := workers.NewWorkflowWorker(f.store, nil, f.dispatcher, f.notifier, testLogger(), workers.WithLeaser(f.leaser))

	release, err := f.leaser.Acquire(ctx, queue.RunLeaseKey("wf-1", f.business.ID), time.Minute)
	require.NoError(t, err)

	defer func() { _ = release(ctx) }()

	_, err = f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)

	err = worker.Handle(ctx, f.reserve(t, models.QueueWorkflow))
	require.ErrorIs(t, err, queue.ErrRunInProgress)
}

func TestWorkflowWorker_PublishFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bus := new(mocks.MockEventBus)
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	worker := workers.NewWorkflowWorker(f.store, workflow.NewExecutor(f.registry, testLogger()), f.dispatcher, f.notifier, testLogger(),
		workers.WithEventPublisher(bus))

	f.saveWorkflow(t, testutil.Graph([]models.Node{startNode()}))

	executionID, err := f.dispatcher.QueueWorkflowExecution(ctx, "wf-1", "user-1", f.business.ID)
	require.NoError(t, err)

	require.NoError(t, worker.Handle(ctx, f.reserve(t, models.QueueWorkflow)))

	record, err := f.store.ExecutionLogRepository().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, record.Status)

	bus.AssertCalled(t, "Publish", mock.Anything, executionID, mock.Anything)
	bus.AssertNumberOfCalls(t, "Publish", 2)
}

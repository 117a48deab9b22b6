package workers_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/notify"
	"github.com/dukex/leadflow/pkg/persistence/memory"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/registry"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/dukex/leadflow/pkg/workers"
	"github.com/dukex/leadflow/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type fixture struct {
	store      *memory.Persistence
	broker     *queue.MemoryBroker
	dispatcher *workers.Dispatcher
	notifier   *notify.Notifier
	registry   *registry.Registry
	publisher  *recordingPublisher
	leaser     *queue.MemoryLeaser
	worker     *workers.WorkflowWorker
	business   *models.Business
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewPersistence(),
		broker:    queue.NewMemoryBroker(),
		publisher: &recordingPublisher{},
		leaser:    queue.NewMemoryLeaser(),
	}
	f.broker.PollTimeout = 20 * time.Millisecond

	logger := log.Discard()
	f.dispatcher = workers.NewDispatcher(f.broker, f.store, logger)
	f.notifier = notify.NewNotifier(f.store, nil, logger)

	f.registry = registry.NewRegistry(logger)
	f.registry.RegisterDefaultNodes(registry.Dependencies{Persistence: f.store})

	executor := workflow.NewExecutor(f.registry, logger)
	f.worker = workers.NewWorkflowWorker(f.store, executor, f.dispatcher, f.notifier, logger,
		workers.WithEventPublisher(f.publisher),
		workers.WithWorkerID("worker-test"),
	)

	f.business = testutil.CreateTestBusiness()
	require.NoError(t, f.store.BusinessRepository().Insert(context.Background(), f.business))

	return f
}

func (f *fixture) saveWorkflow(t *testing.T, graph models.WorkflowGraph) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{ID: "wf-1", UserID: "user-1", Name: "Outreach", IsActive: true, Graph: graph}
	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

// reserve takes the next ready job of queue.
func (f *fixture) reserve(t *testing.T, name string) *queue.Job {
	t.Helper()

	job, err := f.broker.Reserve(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, job)

	return job
}

func setNode(id string, values map[string]any) models.Node {
	return testutil.CreateTestNode(models.NodeTypeSet, models.SetConfig{Values: values}, testutil.WithID(id), testutil.WithLabel(id))
}

func startNode() models.Node {
	return testutil.CreateTestNode(models.NodeTypeStart, models.StartConfig{}, testutil.WithID("start"), testutil.WithLabel("Start"))
}

func testLogger() *slog.Logger {
	return log.Discard()
}

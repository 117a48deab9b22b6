package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/memory"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/scheduler"
	"github.com/dukex/leadflow/pkg/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type failingDispatcher struct{}

func (failingDispatcher) QueueWorkflowExecution(context.Context, string, string, string) (string, error) {
	return "", errors.New("redis unavailable")
}

type fixture struct {
	store     *memory.Persistence
	broker    *queue.MemoryBroker
	scheduler *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: memory.NewPersistence(), broker: queue.NewMemoryBroker()}
	dispatcher := workers.NewDispatcher(f.broker, f.store, log.Discard())

	f.scheduler = scheduler.New(f.store, dispatcher, log.Discard())
	f.scheduler.Now = func() time.Time { return now }

	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), &models.Workflow{
		ID: "wf-1", UserID: "user-1", Name: "Restaurants", TargetCategory: "Restaurant", IsActive: true,
	}))

	return f
}

func (f *fixture) business(t *testing.T, name, category string, createdAt time.Time) *models.Business {
	t.Helper()

	business := &models.Business{UserID: "user-1", Name: name, Category: category, CreatedAt: createdAt}
	require.NoError(t, f.store.BusinessRepository().Insert(context.Background(), business))

	return business
}

func (f *fixture) trigger(t *testing.T, trigger models.TriggerDefinition) *models.TriggerDefinition {
	t.Helper()

	trigger.WorkflowID = "wf-1"
	trigger.UserID = "user-1"
	trigger.IsActive = true
	require.NoError(t, f.store.TriggerRepository().Save(context.Background(), &trigger))

	return &trigger
}

func (f *fixture) reload(t *testing.T, id string) *models.TriggerDefinition {
	t.Helper()

	all, err := f.store.TriggerRepository().Due(context.Background(), now.AddDate(1, 0, 0))
	require.NoError(t, err)

	for _, trigger := range all {
		if trigger.ID == id {
			return trigger
		}
	}

	t.Fatalf("trigger %s not found", id)

	return nil
}

func TestTick_ScheduleTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.business(t, "Diner A", "Restaurant", now.Add(-time.Hour))
	b := f.business(t, "Diner B", "Restaurant", now.Add(-time.Hour))
	emailed := f.business(t, "Diner C", "Restaurant", now.Add(-time.Hour))
	f.business(t, "Cafe", "Cafe", now.Add(-time.Hour))

	sentAt := now.Add(-time.Hour)
	require.NoError(t, f.store.BusinessRepository().UpdateEmailStatus(ctx, emailed.ID, models.EmailStatusSent, &sentAt))

	trigger := f.trigger(t, models.TriggerDefinition{
		TriggerType: models.TriggerTypeSchedule,
		Config:      models.TriggerConfig{Cron: "*/15 * * * *"},
	})

	queued, err := f.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	assert.Equal(t, 2, f.broker.Pending(models.QueueWorkflow))

	runs := f.store.TriggerExecutions()
	require.Len(t, runs, 2)

	selected := []string{runs[0].BusinessID, runs[1].BusinessID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, selected)

	for _, run := range runs {
		assert.Equal(t, models.TriggerExecutionQueued, run.Status)
		assert.NotEmpty(t, run.ExecutionID)

		execution, err := f.store.ExecutionLogRepository().GetByID(ctx, run.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	}

	saved := f.reload(t, trigger.ID)
	require.NotNil(t, saved.LastRunAt)
	assert.Equal(t, now, *saved.LastRunAt)
	require.NotNil(t, saved.NextRunAt)
	assert.Equal(t, now.Add(15*time.Minute), *saved.NextRunAt)

	queued, err = f.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued, "trigger is not due again until its next run")
}

func TestTick_NewBusinessOnlyPicksRecentLeads(t *testing.T) {
	f := newFixture(t)

	f.business(t, "Old Diner", "Restaurant", now.Add(-2*time.Hour))
	fresh := f.business(t, "New Diner", "Restaurant", now.Add(-30*time.Minute))

	f.trigger(t, models.TriggerDefinition{
		TriggerType: models.TriggerTypeNewBusiness,
		CreatedAt:   now.Add(-time.Hour),
	})

	queued, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	runs := f.store.TriggerExecutions()
	require.Len(t, runs, 1)
	assert.Equal(t, fresh.ID, runs[0].BusinessID)
}

func TestTick_NewBusinessUsesLastRun(t *testing.T) {
	f := newFixture(t)

	f.business(t, "Seen Diner", "Restaurant", now.Add(-20*time.Minute))

	lastRun := now.Add(-10 * time.Minute)
	f.trigger(t, models.TriggerDefinition{
		TriggerType: models.TriggerTypeNewBusiness,
		CreatedAt:   now.Add(-time.Hour),
		LastRunAt:   &lastRun,
	})

	queued, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestTick_DelayCompletionOnlyAdvances(t *testing.T) {
	f := newFixture(t)
	f.business(t, "Diner", "Restaurant", now.Add(-time.Hour))

	trigger := f.trigger(t, models.TriggerDefinition{TriggerType: models.TriggerTypeDelayCompletion})

	queued, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Empty(t, f.store.TriggerExecutions())

	saved := f.reload(t, trigger.ID)
	require.NotNil(t, saved.NextRunAt)
	assert.Equal(t, now.Add(models.FallbackTriggerInterval), *saved.NextRunAt)
}

func TestTick_BatchSize(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"A", "B", "C"} {
		f.business(t, name, "Restaurant", now.Add(-time.Hour))
	}

	f.trigger(t, models.TriggerDefinition{TriggerType: models.TriggerTypeSchedule, Config: models.TriggerConfig{BatchSize: 1}})

	queued, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestTick_InactiveWorkflow(t *testing.T) {
	f := newFixture(t)
	f.business(t, "Diner", "Restaurant", now.Add(-time.Hour))

	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), &models.Workflow{
		ID: "wf-1", UserID: "user-1", Name: "Restaurants", TargetCategory: "Restaurant",
	}))

	trigger := f.trigger(t, models.TriggerDefinition{TriggerType: models.TriggerTypeSchedule})

	queued, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.NotNil(t, f.reload(t, trigger.ID).LastRunAt)
}

func TestTick_DispatchFailureIsRecorded(t *testing.T) {
	store := memory.NewPersistence()
	s := scheduler.New(store, failingDispatcher{}, log.Discard())
	s.Now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.WorkflowRepository().Save(ctx, &models.Workflow{ID: "wf-1", UserID: "user-1", IsActive: true}))
	require.NoError(t, store.BusinessRepository().Insert(ctx, &models.Business{UserID: "user-1", Name: "Diner"}))
	require.NoError(t, store.TriggerRepository().Save(ctx, &models.TriggerDefinition{
		WorkflowID: "wf-1", UserID: "user-1", TriggerType: models.TriggerTypeSchedule, IsActive: true,
	}))

	queued, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)

	runs := store.TriggerExecutions()
	require.Len(t, runs, 1)
	assert.Equal(t, models.TriggerExecutionFailed, runs[0].Status)
	assert.Equal(t, "redis unavailable", runs[0].Error)
}

func TestRun_TicksImmediately(t *testing.T) {
	f := newFixture(t)
	f.business(t, "Diner", "Restaurant", now.Add(-time.Hour))
	f.trigger(t, models.TriggerDefinition{TriggerType: models.TriggerTypeSchedule})
	f.scheduler.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- f.scheduler.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.store.TriggerExecutions()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

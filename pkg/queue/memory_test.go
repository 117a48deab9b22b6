package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int `json:"n"`
}

func newMemoryBroker() *queue.MemoryBroker {
	b := queue.NewMemoryBroker()
	b.PollTimeout = 50 * time.Millisecond

	return b
}

func TestMemoryBroker_FIFO(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBroker()

	for i := range 3 {
		_, err := b.Enqueue(ctx, "email", "send", payload{N: i}, queue.EnqueueOptions{})
		require.NoError(t, err)
	}

	for i := range 3 {
		job, err := b.Reserve(ctx, "email")
		require.NoError(t, err)
		require.NotNil(t, job)

		var p payload
		require.NoError(t, job.Decode(&p))
		assert.Equal(t, i, p.N)
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, queue.DefaultAttempts, job.MaxAttempts)
		require.NoError(t, b.Complete(ctx, job))
	}

	job, err := b.Reserve(ctx, "email")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Len(t, b.Completed("email"), 3)
}

func TestMemoryBroker_QueuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBroker()

	_, err := b.Enqueue(ctx, "scraping", "scrape", payload{}, queue.EnqueueOptions{})
	require.NoError(t, err)

	job, err := b.Reserve(ctx, "email")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, 1, b.Pending("scraping"))
}

func TestMemoryBroker_DelayedDelivery(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBroker()
	now := time.Now()
	b.Now = func() time.Time { return now }

	_, err := b.Enqueue(ctx, "workflow", "resume", payload{}, queue.EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	job, err := b.Reserve(ctx, "workflow")
	require.NoError(t, err)
	assert.Nil(t, job)

	delayed := b.Delayed("workflow")
	require.Len(t, delayed, 1)
	assert.Equal(t, now.Add(time.Hour), delayed[0].DueAt)

	now = now.Add(time.Hour)

	job, err = b.Reserve(ctx, "workflow")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "resume", job.Name)
}

func TestMemoryBroker_RetriesWithExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBroker()
	now := time.Now()
	b.Now = func() time.Time { return now }

	_, err := b.Enqueue(ctx, "workflow", "run", payload{}, queue.EnqueueOptions{Attempts: 3, Backoff: 2 * time.Second})
	require.NoError(t, err)

	for attempt, wantDelay := range []time.Duration{2 * time.Second, 4 * time.Second} {
		job, err := b.Reserve(ctx, "workflow")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, attempt+1, job.Attempt)

		retrying, err := b.Fail(ctx, job, errors.New("boom"))
		require.NoError(t, err)
		assert.True(t, retrying)

		delayed := b.Delayed("workflow")
		require.Len(t, delayed, 1)
		assert.Equal(t, now.Add(wantDelay), delayed[0].DueAt)
		assert.Equal(t, "boom", delayed[0].Job.LastError)

		now = now.Add(wantDelay)
	}

	job, err := b.Reserve(ctx, "workflow")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 3, job.Attempt)

	retrying, err := b.Fail(ctx, job, errors.New("final"))
	require.NoError(t, err)
	assert.False(t, retrying)
	assert.Equal(t, 0, b.Pending("workflow"))

	failed := b.Failed("workflow")
	require.Len(t, failed, 1)
	assert.Equal(t, "final", failed[0].LastError)
}

func TestMemoryBroker_ReserveWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	b := queue.NewMemoryBroker()
	b.PollTimeout = 5 * time.Second

	got := make(chan *queue.Job, 1)

	go func() {
		job, _ := b.Reserve(ctx, "email")
		got <- job
	}()

	time.Sleep(20 * time.Millisecond)

	_, err := b.Enqueue(ctx, "email", "send", payload{}, queue.EnqueueOptions{})
	require.NoError(t, err)

	select {
	case job := <-got:
		require.NotNil(t, job)
	case <-time.After(2 * time.Second):
		t.Fatal("reserve did not wake up")
	}
}

func TestMemoryBroker_ReserveHonorsContext(t *testing.T) {
	b := queue.NewMemoryBroker()
	b.PollTimeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Reserve(ctx, "email")

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ProcessesAndCallsOnFailed(t *testing.T) {
	b := newMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	for i := range 5 {
		_, err := b.Enqueue(ctx, "email", "send", payload{N: i}, queue.EnqueueOptions{Attempts: 2, Backoff: time.Millisecond})
		require.NoError(t, err)
	}

	var (
		handled atomic.Int32
		mu      sync.Mutex
		failed  []int
	)

	done := make(chan struct{})

	pool := &queue.Pool{
		Broker:      b,
		Queue:       "email",
		Concurrency: 3,
		Logger:      log.Discard(),
		Handler: func(_ context.Context, job *queue.Job) error {
			handled.Add(1)

			var p payload
			if err := job.Decode(&p); err != nil {
				return err
			}

			if p.N == 4 {
				panic("bad payload")
			}

			if p.N%2 == 1 {
				return errors.New("odd")
			}

			return nil
		},
		OnFailed: func(_ context.Context, job *queue.Job, _ error) {
			var p payload
			_ = job.Decode(&p)

			mu.Lock()
			failed = append(failed, p.N)
			if len(failed) == 3 {
				close(done)
			}
			mu.Unlock()
		},
	}

	go func() { _ = pool.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not fail permanently in time")
	}

	cancel()

	mu.Lock()
	defer mu.Unlock()

	assert.ElementsMatch(t, []int{1, 3, 4}, failed)
	assert.Equal(t, int32(2+2*3), handled.Load())
	assert.Len(t, b.Completed("email"), 2)
}

func TestPool_RunReturnsWhenContextEnds(t *testing.T) {
	b := newMemoryBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	pool := &queue.Pool{Broker: b, Queue: "email", Concurrency: 2, Logger: log.Discard(),
		Handler: func(context.Context, *queue.Job) error { return nil }}

	require.NoError(t, pool.Run(ctx))
}

func TestMemoryLeaser(t *testing.T) {
	ctx := context.Background()
	l := queue.NewMemoryLeaser()
	key := queue.RunLeaseKey("wf-1", "biz-1")

	assert.Equal(t, "leadflow:lease:wf-1:biz-1", key)

	release, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, queue.ErrRunInProgress)

	require.NoError(t, release(ctx))

	_, err = l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
}

func TestMemoryLeaser_Expires(t *testing.T) {
	ctx := context.Background()
	l := queue.NewMemoryLeaser()

	_, err := l.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
}

func TestJob_RetryDelay(t *testing.T) {
	job := &queue.Job{Backoff: 2 * time.Second}

	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		job.Attempt = attempt
		assert.Equal(t, want, job.RetryDelay())
	}
}

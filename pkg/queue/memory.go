package queue

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryQueue struct {
	ready     []*Job
	delayed   map[string]time.Time
	jobs      map[string]*Job
	completed []Job
	failed    []Job
}

// MemoryBroker keeps queues in process. It has the same retry and delay semantics as RedisBroker.
type MemoryBroker struct {
	PollTimeout time.Duration
	Now         func() time.Time

	mu     sync.Mutex
	queues map[string]*memoryQueue
	notify chan struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		PollTimeout: DefaultPollTimeout,
		Now:         time.Now,
		queues:      make(map[string]*memoryQueue),
		notify:      make(chan struct{}),
	}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{delayed: make(map[string]time.Time), jobs: make(map[string]*Job)}
		b.queues[name] = q
	}

	return q
}

// wake releases every Reserve waiting for new work. Callers hold b.mu.
func (b *MemoryBroker) wake() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *MemoryBroker) Enqueue(_ context.Context, queue, name string, payload any, opts EnqueueOptions) (string, error) {
	job, err := newJob(queue, name, payload, opts, b.Now())
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBrokerClosed
	}

	q := b.queue(queue)
	q.jobs[job.ID] = job

	if opts.Delay > 0 {
		q.delayed[job.ID] = b.Now().Add(opts.Delay)
	} else {
		q.ready = append(q.ready, job)
	}

	b.wake()

	return job.ID, nil
}

func (b *MemoryBroker) Reserve(ctx context.Context, queue string) (*Job, error) {
	deadline := time.Now().Add(b.PollTimeout)

	for {
		b.mu.Lock()

		if b.closed {
			b.mu.Unlock()

			return nil, ErrBrokerClosed
		}

		q := b.queue(queue)
		next := b.promote(q)

		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			job.Attempt++

			reserved := *job
			b.mu.Unlock()

			return &reserved, nil
		}

		notify := b.notify
		b.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}

		if !next.IsZero() {
			wait = min(wait, max(next.Sub(b.Now()), time.Millisecond))
		}

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// promote moves due delayed jobs to the ready list and returns the earliest pending due time.
func (b *MemoryBroker) promote(q *memoryQueue) time.Time {
	now := b.Now()

	var (
		due  []*Job
		next time.Time
	)

	for id, at := range q.delayed {
		if !at.After(now) {
			due = append(due, q.jobs[id])
			delete(q.delayed, id)

			continue
		}

		if next.IsZero() || at.Before(next) {
			next = at
		}
	}

	slices.SortFunc(due, func(a, b *Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	q.ready = append(q.ready, due...)

	return next
}

func (b *MemoryBroker) Complete(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(job.Queue)
	delete(q.jobs, job.ID)

	finished := b.Now()
	done := *job
	done.FinishedAt = &finished
	q.completed = keepLast(append(q.completed, done), DefaultKeepComplete)

	return nil
}

func (b *MemoryBroker) Fail(_ context.Context, job *Job, err error) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(job.Queue)

	stored, ok := q.jobs[job.ID]
	if !ok {
		stored = job
	}

	stored.Attempt = job.Attempt
	stored.LastError = err.Error()

	if stored.CanRetry() {
		q.jobs[job.ID] = stored
		q.delayed[job.ID] = b.Now().Add(stored.RetryDelay())
		b.wake()

		return true, nil
	}

	delete(q.jobs, job.ID)

	finished := b.Now()
	done := *stored
	done.FinishedAt = &finished
	q.failed = keepLast(append(q.failed, done), DefaultKeepFailed)

	return false, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.wake()
	}

	return nil
}

// Pending counts ready and delayed jobs of queue.
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)

	return len(q.ready) + len(q.delayed)
}

// DelayedJob is a job waiting for its due time.
type DelayedJob struct {
	Job   Job
	DueAt time.Time
}

// Delayed returns the jobs of queue waiting for their delay, earliest first.
func (b *MemoryBroker) Delayed(queue string) []DelayedJob {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	out := make([]DelayedJob, 0, len(q.delayed))

	for id, at := range q.delayed {
		out = append(out, DelayedJob{Job: *q.jobs[id], DueAt: at})
	}

	slices.SortFunc(out, func(a, b DelayedJob) int { return a.DueAt.Compare(b.DueAt) })

	return out
}

// Completed returns the retained completed jobs of queue, oldest first.
func (b *MemoryBroker) Completed(queue string) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.queue(queue).completed)
}

// Failed returns the retained permanently failed jobs of queue, oldest first.
func (b *MemoryBroker) Failed(queue string) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.queue(queue).failed)
}

func keepLast(jobs []Job, n int) []Job {
	if len(jobs) <= n {
		return jobs
	}

	return slices.Clone(jobs[len(jobs)-n:])
}

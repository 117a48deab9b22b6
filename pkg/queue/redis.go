package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "leadflow:"

// promoteScript moves due delayed job ids to the wait list atomically.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// RedisBroker stores jobs in Redis. Ready ids wait in a list, delayed ids in a sorted set scored
// by due time in unix milliseconds, and reserved ids in an active list until completed or failed.
type RedisBroker struct {
	client        redis.UniversalClient
	PollTimeout   time.Duration
	KeepCompleted int64
	KeepFailed    int64
	PromoteBatch  int
}

func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{
		client:        client,
		PollTimeout:   DefaultPollTimeout,
		KeepCompleted: DefaultKeepComplete,
		KeepFailed:    DefaultKeepFailed,
		PromoteBatch:  100,
	}
}

type queueKeys struct {
	wait, active, delayed, completed, failed string
	prefix                                   string
}

func keys(queue string) queueKeys {
	prefix := keyPrefix + queue + ":"

	return queueKeys{
		prefix:    prefix,
		wait:      prefix + "wait",
		active:    prefix + "active",
		delayed:   prefix + "delayed",
		completed: prefix + "completed",
		failed:    prefix + "failed",
	}
}

func (k queueKeys) job(id string) string { return k.prefix + "job:" + id }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (b *RedisBroker) Enqueue(ctx context.Context, queue, name string, payload any, opts EnqueueOptions) (string, error) {
	job, err := newJob(queue, name, payload, opts, time.Now().UTC())
	if err != nil {
		return "", err
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	k := keys(queue)

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k.job(job.ID), encoded, 0)

		if opts.Delay > 0 {
			pipe.ZAdd(ctx, k.delayed, redis.Z{Score: score(time.Now().Add(opts.Delay)), Member: job.ID})
		} else {
			pipe.LPush(ctx, k.wait, job.ID)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", queue, err)
	}

	return job.ID, nil
}

func (b *RedisBroker) Reserve(ctx context.Context, queue string) (*Job, error) {
	k := keys(queue)

	err := promoteScript.Run(ctx, b.client, []string{k.delayed, k.wait},
		strconv.FormatInt(time.Now().UnixMilli(), 10), b.PromoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to promote delayed %s jobs: %w", queue, err)
	}

	id, err := b.client.BLMove(ctx, k.wait, k.active, "RIGHT", "LEFT", b.PollTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to reserve %s job: %w", queue, err)
	}

	raw, err := b.client.Get(ctx, k.job(id)).Bytes()
	if err != nil {
		b.client.LRem(ctx, k.active, 1, id)

		return nil, fmt.Errorf("failed to load %s job %s: %w", queue, id, err)
	}

	var job Job

	err = json.Unmarshal(raw, &job)
	if err != nil {
		b.client.LRem(ctx, k.active, 1, id)

		return nil, fmt.Errorf("failed to decode %s job %s: %w", queue, id, err)
	}

	job.Attempt++

	err = b.save(ctx, k, &job)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (b *RedisBroker) save(ctx context.Context, k queueKeys, job *Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	err = b.client.Set(ctx, k.job(job.ID), encoded, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save %s job %s: %w", job.Queue, job.ID, err)
	}

	return nil
}

// finish moves job into a bounded history list and drops its record.
func (b *RedisBroker) finish(ctx context.Context, k queueKeys, job *Job, history string, keep int64) error {
	finished := time.Now().UTC()
	job.FinishedAt = &finished

	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, k.active, 1, job.ID)
		pipe.LPush(ctx, history, encoded)
		pipe.LTrim(ctx, history, 0, keep-1)
		pipe.Del(ctx, k.job(job.ID))

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finish %s job %s: %w", job.Queue, job.ID, err)
	}

	return nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job) error {
	k := keys(job.Queue)

	return b.finish(ctx, k, job, k.completed, b.KeepCompleted)
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, jobErr error) (bool, error) {
	k := keys(job.Queue)
	job.LastError = jobErr.Error()

	if !job.CanRetry() {
		return false, b.finish(ctx, k, job, k.failed, b.KeepFailed)
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k.job(job.ID), encoded, 0)
		pipe.LRem(ctx, k.active, 1, job.ID)
		pipe.ZAdd(ctx, k.delayed, redis.Z{Score: score(time.Now().Add(job.RetryDelay())), Member: job.ID})

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to schedule retry of %s job %s: %w", job.Queue, job.ID, err)
	}

	return true, nil
}

// Close closes the underlying client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

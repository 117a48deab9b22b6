package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed holder can block a key.
const DefaultLeaseTTL = 30 * time.Minute

// ErrRunInProgress is returned when another holder owns the lease.
var ErrRunInProgress = errors.New("run already in progress")

// Release gives a lease back.
type Release func(ctx context.Context) error

// Leaser grants exclusive, expiring ownership of a key.
type Leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// RunLeaseKey is the lease key serializing runs of one workflow for one business.
func RunLeaseKey(workflowID, businessID string) string {
	return keyPrefix + "lease:" + workflowID + ":" + businessID
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisLeaser struct {
	client redis.UniversalClient
}

func NewRedisLeaser(client redis.UniversalClient) *RedisLeaser {
	return &RedisLeaser{client: client}
}

func (l *RedisLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}

	if !ok {
		return nil, ErrRunInProgress
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

type MemoryLeaser struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLeaser() *MemoryLeaser {
	return &MemoryLeaser{leases: make(map[string]memoryLease)}
}

func (l *MemoryLeaser) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.leases[key]; ok && time.Now().Before(held.expires) {
		return nil, ErrRunInProgress
	}

	token := uuid.New().String()
	l.leases[key] = memoryLease{token: token, expires: time.Now().Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}

		return nil
	}, nil
}

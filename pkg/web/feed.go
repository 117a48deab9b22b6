package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
)

// DefaultFeedSize is how many executions an ExecutionFeed remembers.
const DefaultFeedSize = 1000

type lifecycleEvent interface {
	GetType() events.EventType
	Base() events.BaseEvent
}

type FeedEntry struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Event     any              `json:"event"`
}

// ExecutionFeed keeps the lifecycle events seen on the bus for the most recent executions.
// The oldest execution is forgotten once more than size executions are tracked.
type ExecutionFeed struct {
	mu      sync.RWMutex
	size    int
	order   []string
	entries map[string][]FeedEntry
}

func NewExecutionFeed(size int) *ExecutionFeed {
	if size <= 0 {
		size = DefaultFeedSize
	}

	return &ExecutionFeed{
		size:    size,
		entries: make(map[string][]FeedEntry),
	}
}

// Register installs the feed as the handler of every execution lifecycle event.
func (f *ExecutionFeed) Register(subscriber eventbus.EventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
		events.ExecutionFailedEvent,
		events.ExecutionSuspendedEvent,
	} {
		if err := subscriber.Handle(eventType, f.Record); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}

func (f *ExecutionFeed) Record(_ context.Context, event any) error {
	e, ok := event.(lifecycleEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	base := e.Base()
	if base.ExecutionID == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.entries[base.ExecutionID]; !seen {
		f.order = append(f.order, base.ExecutionID)

		if len(f.order) > f.size {
			delete(f.entries, f.order[0])
			f.order = f.order[1:]
		}
	}

	f.entries[base.ExecutionID] = append(f.entries[base.ExecutionID], FeedEntry{
		Type:      e.GetType(),
		Timestamp: base.Timestamp,
		Event:     event,
	})

	return nil
}

// Events returns a copy of the events recorded for executionID, oldest first.
func (f *ExecutionFeed) Events(executionID string) []FeedEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries := f.entries[executionID]
	out := make([]FeedEntry, len(entries))
	copy(out, entries)

	return out
}

package service

import (
	"sync"

	"netfabric/internal/eventlog"
)

// EventBus fans stored events out to live subscribers. Delivery is
// best-effort: a slow subscriber misses events rather than blocking
// the command path. The log remains the source of truth.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- eventlog.Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- eventlog.Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- eventlog.Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(ev eventlog.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow, skip
		}
	}
}

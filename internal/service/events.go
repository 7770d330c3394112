package service

import (
	"sync"
	"time"

	"camerabridge/internal/registry"
)

// EventType defines the type of event
type EventType string

const (
	EventDeviceAdded        EventType = EventType(registry.ChangeAdded)
	EventDeviceUpdated      EventType = EventType(registry.ChangeUpdated)
	EventDeviceRemoved      EventType = EventType(registry.ChangeRemoved)
	EventDiscoveryStarted   EventType = "discovery_started"
	EventDiscoveryCompleted EventType = "discovery_completed"
)

// Event represents an event that occurred in the system
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventBus allows publishing and subscribing to events. Publish never
// blocks; a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
		now:         time.Now,
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes ch. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// PublishDiscoveryEvent forwards scanner and orchestrator progress
func (eb *EventBus) PublishDiscoveryEvent(eventType string, payload any) {
	eb.Publish(Event{Type: EventType(eventType), Payload: payload})
}

// RegistryListener returns a listener that republishes registry changes
func (eb *EventBus) RegistryListener() registry.Listener {
	return func(c registry.Change) {
		eb.Publish(Event{Type: EventType(c.Kind), Payload: c.Device})
	}
}

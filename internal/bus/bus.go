// Package bus provides the async event feed that decouples the pipeline
// from its read-only consumers (stream export, notifications, dashboards).
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/convo"
)

// Event types.
const (
	TypeMessage    = "message"
	TypeAgentEvent = "agent_event"
	TypeHandoff    = "handoff"
	TypeQueued     = "queued"
	TypeResolved   = "resolved"
)

// Event is one entry on the conversation event feed. Consumers treat
// events as read-only; they never feed back into pipeline decisions.
type Event struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id"`
	TraceID        string            `json:"trace_id,omitempty"`
	Message        *convo.Message    `json:"message,omitempty"`
	AgentEvent     *convo.AgentEvent `json:"agent_event,omitempty"`
	Detail         map[string]any    `json:"detail,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// EventBus fans conversation events out to subscribers.
type EventBus struct {
	events chan *Event
	mu     sync.RWMutex
	subs   map[string][]func(*Event) // event type -> callbacks; "" matches all
}

// New creates a new event bus.
func New() *EventBus {
	return &EventBus{
		events: make(chan *Event, 256),
		subs:   make(map[string][]func(*Event)),
	}
}

// Publish queues an event for dispatch. Publishing never blocks the
// pipeline: when the buffer is full the event is dropped.
func (b *EventBus) Publish(ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Subscribe registers a callback for events of the given type. An empty
// type subscribes to everything.
func (b *EventBus) Subscribe(eventType string, callback func(*Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], callback)
}

// Dispatch runs the dispatcher until the context is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.mu.RLock()
			callbacks := append(([]func(*Event))(nil), b.subs[ev.Type]...)
			callbacks = append(callbacks, b.subs[""]...)
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(ev)
			}
		}
	}
}

// Pending returns the number of undispatched events.
func (b *EventBus) Pending() int {
	return len(b.events)
}

package events

import (
	"sync"
	"time"
)

// Domain event types published by the chat and booking services.
const (
	ChatAccepted     = "chat.accepted"
	ChatClosed       = "chat.closed"
	BookingCreated   = "booking.created"
	BookingCompleted = "booking.completed"
	BookingCancelled = "booking.cancelled"
	RequestAccepted  = "request.accepted"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	ActorID   int64 // user whose action produced the event
	SubjectID int64 // chat, record or request id
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

package events

import (
	"context"
	"sync"

	"github.com/Dan9191/advance-service/internal/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeNotification      EventType = "notification"
	EventTypeLoanStatusChanged EventType = "loan_status_changed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// NotificationEvent asks the notification collaborators to tell one user about something
type NotificationEvent struct {
	Kind        models.NotificationType
	RecipientID int64
	Payload     map[string]any
	// SMS and Email request delivery on those channels in addition to the in-app notification.
	SMS   bool
	Email bool
}

func (e NotificationEvent) Type() EventType {
	return EventTypeNotification
}

// LoanStatusChangedEvent records a committed loan status transition
type LoanStatusChangedEvent struct {
	LoanID    int64
	OldStatus models.LoanStatus
	NewStatus models.LoanStatus
	ActorID   *int64
}

func (e LoanStatusChangedEvent) Type() EventType {
	return EventTypeLoanStatusChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit hands the event to every registered handler in subscription order. Handlers run on the
// caller's goroutine so that events emitted in sequence are delivered in sequence; a panicking
// handler is logged and does not stop the others.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range handlers {
		func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until the transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stashes an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the events stashed so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// Flush emits pending events in publish order; called after a successful commit.
func (b *TransactionalBus) Flush() {
	// The request context may already be cancelled by the time delivery happens.
	eventCtx := context.Background()

	pending := b.pending
	b.pending = nil
	for _, ev := range pending {
		if b.real != nil {
			b.real.Emit(eventCtx, ev)
		}
	}
	log.WithField("eventCount", len(pending)).Debug("Flushed transactional bus")
}

// Discard drops pending events; called after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}

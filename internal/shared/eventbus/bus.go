package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedback-sync/internal/shared/logger"
)

// Event represents a generic event
type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// Bus is the contract components publish to and subscribe on.
type Bus interface {
	Subscribe(eventType string, handler Handler) (unsubscribe func())
	Publish(ctx context.Context, event Event) error
	SubscriberCount(eventType string) int
}

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is an in-memory, synchronous event bus. Handlers run on the
// publisher's goroutine in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   logger.Logger
	config   BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	// StopOnError aborts delivery to the remaining handlers after the first failure.
	StopOnError bool
}

// DefaultBusConfig returns default configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{StopOnError: false}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &EventBus{
		handlers: make(map[string][]subscription),
		logger:   log.WithComponent("eventbus"),
		config:   config,
	}
}

// Subscribe adds a handler for a specific event type. The returned function
// removes exactly this handler and is safe to call more than once.
func (eb *EventBus) Subscribe(eventType string, handler Handler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})
	eb.logger.Debugf("Subscribed handler %d for event type: %s", id, eventType)

	var once sync.Once
	return func() {
		once.Do(func() { eb.remove(eventType, id) })
	}
}

func (eb *EventBus) remove(eventType string, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[eventType]
	kept := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(eb.handlers, eventType)
		return
	}
	eb.handlers[eventType] = kept
}

// Publish sends an event to all handlers registered at the time of the call.
// Handler errors are logged; the first one is returned.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	subs := append([]subscription(nil), eb.handlers[event.Type()]...)
	eb.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	var firstErr error
	for _, s := range subs {
		if err := s.handler(ctx, event); err != nil {
			eb.logger.Errorf("Handler %d failed for event %s: %v", s.id, event.Type(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s: %w", event.Type(), err)
			}
			if eb.config.StopOnError {
				return firstErr
			}
		}
	}
	return firstErr
}

// SubscriberCount returns the number of handlers for an event type
func (eb *EventBus) SubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	eventType string
	data      interface{}
	timestamp time.Time
	source    string
}

// NewBasicEvent creates a new basic event
func NewBasicEvent(eventType string, data interface{}) Event {
	return NewBasicEventWithSource(eventType, data, "unknown")
}

// NewBasicEventWithSource creates a new basic event with source
func NewBasicEventWithSource(eventType string, data interface{}, source string) Event {
	return &BasicEvent{
		eventType: eventType,
		data:      data,
		timestamp: time.Now(),
		source:    source,
	}
}

func (e *BasicEvent) Type() string {
	return e.eventType
}

func (e *BasicEvent) Data() interface{} {
	return e.data
}

func (e *BasicEvent) Timestamp() time.Time {
	return e.timestamp
}

func (e *BasicEvent) Source() string {
	return e.source
}

// Event types published by the client core
const (
	EventTypeAuthStarted          = "auth.started"
	EventTypeAuthFailed           = "auth.failed"
	EventTypeAuthRegistered       = "auth.registered"
	EventTypeSessionSignedOut     = "session.signed_out"
	EventTypeSubmissionStarted    = "submission.started"
	EventTypeSubmissionSucceeded  = "submission.succeeded"
	EventTypeSubmissionFailed     = "submission.failed"
	EventTypeSubscriptionOpened   = "subscription.opened"
	EventTypeSubscriptionClosed   = "subscription.closed"
	EventTypeSubscriptionDegraded = "subscription.degraded"
	EventTypeSnapshotPublished    = "snapshot.published"
	EventTypeRecordDropped        = "record.dropped"
)

// Payloads carried by the events above.

// AuthPayload accompanies auth.* and session.signed_out events.
type AuthPayload struct {
	Email    string
	Identity string
	Err      error
}

// SubmissionPayload accompanies submission.* events.
type SubmissionPayload struct {
	OwnerID  string
	RecordID string
	Err      error
}

// SubscriptionPayload accompanies subscription.* events.
type SubscriptionPayload struct {
	SubscriptionID string
	OwnerID        string
	Err            error
}

// SnapshotPayload accompanies snapshot.published events.
type SnapshotPayload struct {
	OwnerID string
	Version uint64
	Size    int
}

// RecordDroppedPayload accompanies record.dropped events.
type RecordDroppedPayload struct {
	RecordID string
	Reason   string
}

// Record drop reasons
const (
	DropReasonMalformed     = "malformed"
	DropReasonOwnerMismatch = "owner-mismatch"
)

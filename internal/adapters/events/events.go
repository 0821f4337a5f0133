// Package events is the in-process publish/subscribe channel for registry
// lifecycle and operational events. Delivery is synchronous, in subscription
// order, within the publishing call; a panicking listener never prevents
// delivery to subsequent listeners or reaches the publisher. There is no
// persistence: listeners that subscribe after an event was published never
// see it.
package events

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// Type identifies a registry event
type Type string

// Registry event types
const (
	TypeRegistryStarted     Type = "registry.started"
	TypeRegistryStopped     Type = "registry.stopped"
	TypeAdapterRegistered   Type = "adapter.registered"
	TypeAdapterUnregistered Type = "adapter.unregistered"
	TypeAdapterFailed       Type = "adapter.failed"
	TypeExecutionCompleted  Type = "execution.completed"
	TypeExecutionFailed     Type = "execution.failed"
	TypeHealthChanged       Type = "adapter.health_changed"
	TypeResourceAlert       Type = "resource.alert"
)

// Event is an immutable registry event, broadcast once and never replayed
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	AdapterID string                 `json:"adapter_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   interface{}            `json:"payload,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an event with a fresh id and the current timestamp
func New(eventType Type, adapterID string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		AdapterID: adapterID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// WithMetadata attaches metadata to an event before it is published
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Listener handles registry events
type Listener interface {
	Handle(ctx context.Context, event *Event) error
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, event *Event) error

// Handle implements Listener
func (f ListenerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Mirror forwards published events to an off-process sink. Mirror failures are
// logged and never affect in-process delivery.
type Mirror interface {
	Publish(ctx context.Context, event *Event) error
}

// Bus is the in-process event bus
type Bus struct {
	listeners       map[Type][]Listener
	globalListeners []Listener
	mirror          Mirror
	mu              sync.RWMutex
	logger          observability.Logger
}

// NewBus creates an event bus
func NewBus(logger observability.Logger) *Bus {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Bus{
		listeners: make(map[Type][]Listener),
		logger:    logger,
	}
}

// SetMirror installs an off-process mirror for all published events
func (b *Bus) SetMirror(mirror Mirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = mirror
}

// Subscribe subscribes a listener to events of a specific type
func (b *Bus) Subscribe(eventType Type, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
}

// SubscribeAll subscribes a listener to every event type
func (b *Bus) SubscribeAll(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, listener)
}

// Unsubscribe removes a listener from a specific event type. Listeners are
// compared by interface identity, so the value passed here must be the one
// passed to Subscribe.
func (b *Bus) Unsubscribe(eventType Type, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	listeners := b.listeners[eventType]
	filtered := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		if !sameListener(l, listener) {
			filtered = append(filtered, l)
		}
	}
	b.listeners[eventType] = filtered
}

// UnsubscribeAll removes a listener everywhere it is subscribed
func (b *Bus) UnsubscribeAll(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filteredGlobal := make([]Listener, 0, len(b.globalListeners))
	for _, l := range b.globalListeners {
		if !sameListener(l, listener) {
			filteredGlobal = append(filteredGlobal, l)
		}
	}
	b.globalListeners = filteredGlobal

	for eventType, listeners := range b.listeners {
		filtered := make([]Listener, 0, len(listeners))
		for _, l := range listeners {
			if !sameListener(l, listener) {
				filtered = append(filtered, l)
			}
		}
		b.listeners[eventType] = filtered
	}
}

// sameListener compares listeners by identity. Func-typed listeners are not
// comparable with ==, so those fall back to comparing code pointers.
func sameListener(a, b Listener) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if reflect.TypeOf(a).Comparable() {
		return a == b
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Publish delivers an event to all matching listeners, in subscription order,
// then to global listeners. At-most-once, best-effort fan-out.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	b.mu.RLock()
	listeners := b.listeners[event.Type]
	listenersCopy := make([]Listener, len(listeners))
	copy(listenersCopy, listeners)
	globalCopy := make([]Listener, len(b.globalListeners))
	copy(globalCopy, b.globalListeners)
	mirror := b.mirror
	b.mu.RUnlock()

	b.logger.Debug("Publishing event", map[string]interface{}{
		"eventId":   event.ID,
		"eventType": string(event.Type),
		"adapterId": event.AdapterID,
		"listeners": len(listenersCopy) + len(globalCopy),
	})

	for _, listener := range listenersCopy {
		b.deliver(ctx, listener, event)
	}
	for _, listener := range globalCopy {
		b.deliver(ctx, listener, event)
	}

	if mirror != nil {
		if err := mirror.Publish(ctx, event); err != nil {
			b.logger.Warn("Event mirror publish failed", map[string]interface{}{
				"eventId":   event.ID,
				"eventType": string(event.Type),
				"error":     err.Error(),
			})
		}
	}
}

// deliver invokes one listener, isolating errors and panics from the publisher
func (b *Bus) deliver(ctx context.Context, listener Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked", map[string]interface{}{
				"eventId":   event.ID,
				"eventType": string(event.Type),
				"panic":     fmt.Sprintf("%v", r),
			})
		}
	}()
	if err := listener.Handle(ctx, event); err != nil {
		b.logger.Warn("Error handling event", map[string]interface{}{
			"eventId":   event.ID,
			"eventType": string(event.Type),
			"adapterId": event.AdapterID,
			"error":     err.Error(),
		})
	}
}

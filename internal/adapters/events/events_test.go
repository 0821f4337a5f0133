package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	name string
	seen *[]string
	err  error
}

func (l *recordingListener) Handle(ctx context.Context, event *Event) error {
	*l.seen = append(*l.seen, l.name+":"+string(event.Type))
	return l.err
}

func TestPublishDeliveryOrder(t *testing.T) {
	bus := NewBus(nil)
	var seen []string

	first := &recordingListener{name: "first", seen: &seen}
	second := &recordingListener{name: "second", seen: &seen}
	global := &recordingListener{name: "global", seen: &seen}

	bus.Subscribe(TypeAdapterRegistered, first)
	bus.Subscribe(TypeAdapterRegistered, second)
	bus.SubscribeAll(global)

	bus.Publish(context.Background(), New(TypeAdapterRegistered, "a", nil))

	assert.Equal(t, []string{
		"first:adapter.registered",
		"second:adapter.registered",
		"global:adapter.registered",
	}, seen, "delivery must follow subscription order, globals last")
}

func TestPublishIsolatesFailures(t *testing.T) {
	bus := NewBus(nil)
	var seen []string

	failing := &recordingListener{name: "failing", seen: &seen, err: fmt.Errorf("boom")}
	panicking := ListenerFunc(func(ctx context.Context, event *Event) error {
		panic("listener exploded")
	})
	after := &recordingListener{name: "after", seen: &seen}

	bus.Subscribe(TypeExecutionFailed, failing)
	bus.Subscribe(TypeExecutionFailed, panicking)
	bus.Subscribe(TypeExecutionFailed, after)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), New(TypeExecutionFailed, "a", nil))
	})
	assert.Contains(t, seen, "after:execution.failed",
		"a throwing handler must not prevent delivery to subsequent handlers")
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(context.Background(), New(TypeAdapterRegistered, "a", nil))

	var seen []string
	late := &recordingListener{name: "late", seen: &seen}
	bus.Subscribe(TypeAdapterRegistered, late)

	assert.Empty(t, seen, "events are never replayed to late subscribers")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(nil)
	var seen []string

	listener := &recordingListener{name: "l", seen: &seen}
	bus.Subscribe(TypeAdapterRegistered, listener)
	bus.Unsubscribe(TypeAdapterRegistered, listener)

	bus.Publish(context.Background(), New(TypeAdapterRegistered, "a", nil))
	assert.Empty(t, seen)
}

func TestUnsubscribeAll(t *testing.T) {
	bus := NewBus(nil)
	var seen []string

	listener := &recordingListener{name: "l", seen: &seen}
	bus.Subscribe(TypeAdapterRegistered, listener)
	bus.Subscribe(TypeAdapterUnregistered, listener)
	bus.SubscribeAll(listener)
	bus.UnsubscribeAll(listener)

	bus.Publish(context.Background(), New(TypeAdapterRegistered, "a", nil))
	bus.Publish(context.Background(), New(TypeAdapterUnregistered, "a", nil))
	assert.Empty(t, seen)
}

type recordingMirror struct {
	events []*Event
	err    error
}

func (m *recordingMirror) Publish(ctx context.Context, event *Event) error {
	m.events = append(m.events, event)
	return m.err
}

func TestMirrorReceivesEvents(t *testing.T) {
	bus := NewBus(nil)
	mirror := &recordingMirror{}
	bus.SetMirror(mirror)

	event := New(TypeHealthChanged, "a", map[string]interface{}{"healthy": false})
	bus.Publish(context.Background(), event)

	require.Len(t, mirror.events, 1)
	assert.Equal(t, event.ID, mirror.events[0].ID)
}

func TestMirrorFailureDoesNotBlockDelivery(t *testing.T) {
	bus := NewBus(nil)
	bus.SetMirror(&recordingMirror{err: fmt.Errorf("stream gone")})

	var seen []string
	bus.Subscribe(TypeHealthChanged, &recordingListener{name: "l", seen: &seen})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), New(TypeHealthChanged, "a", nil))
	})
	assert.Len(t, seen, 1)
}

func TestEventMetadata(t *testing.T) {
	event := New(TypeResourceAlert, "", nil).WithMetadata("severity", "warning")
	assert.Equal(t, "warning", event.Metadata["severity"])
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// RedisStreamsMirror mirrors bus events to a Redis Stream so off-process
// observers can tail registry activity. It implements Mirror; failures are
// surfaced to the bus, which logs and moves on.
type RedisStreamsMirror struct {
	client     redis.UniversalClient
	streamName string
	maxLen     int64
	logger     observability.Logger
}

// NewRedisStreamsMirror creates a mirror writing to the named stream. maxLen
// bounds the stream with approximate trimming; zero means unbounded.
func NewRedisStreamsMirror(client redis.UniversalClient, streamName string, maxLen int64, logger observability.Logger) *RedisStreamsMirror {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RedisStreamsMirror{
		client:     client,
		streamName: streamName,
		maxLen:     maxLen,
		logger:     logger,
	}
}

// Publish appends one event to the stream
func (m *RedisStreamsMirror) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: m.streamName,
		Values: map[string]interface{}{
			"id":         event.ID,
			"type":       string(event.Type),
			"adapter_id": event.AdapterID,
			"event":      payload,
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}

	if err := m.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending event %s to stream %s: %w", event.ID, m.streamName, err)
	}

	m.logger.Debug("Mirrored event to redis stream", map[string]interface{}{
		"eventId": event.ID,
		"stream":  m.streamName,
	})
	return nil
}

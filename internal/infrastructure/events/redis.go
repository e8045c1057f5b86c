// Package events delivers outbox messages to subscribers.
package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/pkg/logger"
)

// ChannelPrefix prefixes every pub/sub channel, followed by the event type.
const ChannelPrefix = "pharmledger:events:"

// Channel returns the pub/sub channel for an event type.
func Channel(eventType string) string {
	return ChannelPrefix + eventType
}

// RedisPublisher publishes outbox messages on redis pub/sub.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Handle implements postgres.OutboxHandler.
func (p *RedisPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if err := p.client.Publish(ctx, Channel(msg.EventType), msg.Payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	return nil
}

// LogPublisher writes outbox messages to the log. Used when redis is disabled.
type LogPublisher struct{}

// Handle implements postgres.OutboxHandler.
func (LogPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	logger.Debug(ctx, "event",
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"payload_bytes", len(msg.Payload),
	)
	return nil
}

var (
	_ postgres.OutboxHandler = (*RedisPublisher)(nil)
	_ postgres.OutboxHandler = LogPublisher{}
)

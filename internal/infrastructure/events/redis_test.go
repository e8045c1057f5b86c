package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pharmledger/internal/core/id"
	"pharmledger/internal/infrastructure/storage/postgres"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "pharmledger:events:inventory.movement.recorded", Channel(postgres.EventMovementRecorded))
}

func TestLogPublisherAcceptsEveryMessage(t *testing.T) {
	msg := &postgres.OutboxMessage{
		ID:          id.New(),
		AggregateID: id.New(),
		EventType:   postgres.EventMovementRecorded,
		Payload:     []byte(`{"quantity":12}`),
	}
	assert.NoError(t, LogPublisher{}.Handle(context.Background(), msg))
}

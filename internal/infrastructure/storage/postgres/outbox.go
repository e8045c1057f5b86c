package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/inventory"
	"pharmledger/pkg/logger"
)

// EventMovementRecorded is emitted once per stock movement.
const EventMovementRecorded = "inventory.movement.recorded"

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of delivery attempts before a message is parked.
const MaxOutboxRetries = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// Compile-time check that OutboxPublisher feeds the inventory service.
var _ inventory.MovementPublisher = (*OutboxPublisher)(nil)

// OutboxPublisher writes movement events into sys_outbox within the
// transaction that recorded the movements.
type OutboxPublisher struct {
	txManager *TxManager
	batch     *BatchInserter
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, batch: NewBatchInserter(txManager)}
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PublishMovements queues one event per movement.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) PublishMovements(ctx context.Context, movements []inventory.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	if p.txManager.GetTx(ctx) == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	now := time.Now().UTC()
	queries := make([]BatchQuery, 0, len(movements))
	for i := range movements {
		m := &movements[i]
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal movement %s: %w", m.ID, err)
		}
		queries = append(queries, BatchQuery{
			SQL:  insertOutboxSQL,
			Args: []any{id.New(), "stock_movement", m.ID, EventMovementRecorded, payload, OutboxStatusPending, now},
		})
	}

	if err := p.batch.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("insert outbox messages: %w", err)
	}
	return nil
}

// OutboxHandler delivers outbox messages to their destination.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to a handler.
// Used by the background worker.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(pool *Pool, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		pool:      pool.Pool,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch delivers up to batchSize pending messages and returns how
// many were published. Rows stay locked until the batch commits, so
// concurrent relays skip them.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	messages, err := r.fetchPending(ctx, tx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, msg := range messages {
		if err := r.processMessage(ctx, tx, msg); err != nil {
			logger.Warn(ctx, "outbox delivery failed",
				"message_id", msg.ID,
				"event_type", msg.EventType,
				"retry", msg.RetryCount+1,
				"error", err,
			)
			continue
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return processed, nil
}

func (r *OutboxRelay) fetchPending(ctx context.Context, tx pgx.Tx) ([]*OutboxMessage, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
		       retry_count, last_error, next_retry_at, created_at, published_at
		FROM sys_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxMessage])
	if err != nil {
		return nil, fmt.Errorf("scan outbox messages: %w", err)
	}
	return messages, nil
}

// processMessage handles a single outbox message. A failed delivery is
// retried with linear backoff and parked as failed after MaxOutboxRetries.
func (r *OutboxRelay) processMessage(ctx context.Context, tx pgx.Tx, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		_, updateErr := tx.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, err.Error(), nextRetry, MaxOutboxRetries, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	_, err := tx.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	return err
}

// MoveToDLQ moves messages that exhausted their retries to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved
	`, OutboxStatusFailed, MaxOutboxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}

// PurgePublished deletes published messages older than the cutoff.
func (r *OutboxRelay) PurgePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sys_outbox WHERE status = $1 AND published_at < $2
	`, OutboxStatusPublished, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge published outbox: %w", err)
	}
	return result.RowsAffected(), nil
}

package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pharmledger/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// staleAfter is how long a pending key may sit before another request may reclaim it.
const staleAfter = time.Minute

// IdempotencyReplay is a stored HTTP response served again for a repeated key.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore keeps idempotency keys for mutating requests such as
// checkout and refunds. It works on the pool directly: a key is claimed
// before the request transaction starts and settled after it ends.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(pool *Pool, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{pool: pool.Pool, ttl: ttl}
}

// AcquireKey claims key for this request.
// Returns:
//   - (nil, nil) if the key was claimed and the request should run
//   - (replay, nil) if the operation already finished
//   - (nil, error) if the key is in flight or belongs to a different request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()

	var (
		inserted    bool
		storedUser  string
		storedOp    string
		storedHash  string
		status      IdempotencyStatus
		body        []byte
		statusCode  *int
		contentType *string
		updatedAt   time.Time
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING (xmax = 0), user_id, operation, request_hash, status, response, response_status, response_content_type, updated_at
	`, key, userID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl)).Scan(
		&inserted, &storedUser, &storedOp, &storedHash, &status, &body, &statusCode, &contentType, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if storedUser != userID || storedOp != operation || storedHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", storedOp).
			WithDetail("request_operation", operation)
	}

	switch status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		replay := &IdempotencyReplay{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}
		if statusCode != nil && *statusCode != 0 {
			replay.StatusCode = *statusCode
		}
		if contentType != nil && *contentType != "" {
			replay.ContentType = *contentType
		}
		return replay, nil
	}

	if now.Sub(updatedAt) <= staleAfter {
		return nil, apperror.NewIdempotencyConflict(key)
	}

	// The previous holder most likely crashed; take the key over.
	tag, err := s.pool.Exec(ctx, `
		UPDATE sys_idempotency SET updated_at = $1
		WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
	`, now, key, IdempotencyStatusPending, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return nil, nil
}

// CompleteKey stores a successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.settle(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, body)
}

// FailKey stores a client-error response for replay.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.settle(ctx, key, IdempotencyStatusFailed, statusCode, contentType, body)
}

// ReleaseKey drops a pending key so the request can be retried, used after
// server errors that left nothing committed.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2
	`, key, IdempotencyStatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) settle(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, body []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("settle idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}

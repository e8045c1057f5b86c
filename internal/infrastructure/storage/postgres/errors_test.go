package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"pharmledger/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{pgDeadlockDetected, apperror.CodeConcurrentModification},
		{pgSerializationFailure, apperror.CodeConcurrentModification},
		{pgLockNotAvailable, apperror.CodeConcurrentModification},
		{pgUniqueViolation, apperror.CodeConflict},
		{pgForeignKeyViolation, apperror.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("update batch: %w", &pgconn.PgError{Code: tt.code})
			mapped := MapError(err, "batch", "b-1")
			assert.True(t, apperror.HasCode(mapped, tt.want))

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(mapped, &pgErr), "cause stays reachable")
		})
	}
}

func TestMapErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, MapError(plain, "batch", "b-1"))
	assert.Nil(t, MapError(nil, "batch", "b-1"))

	other := &pgconn.PgError{Code: "22001"}
	assert.Equal(t, error(other), MapError(other, "batch", "b-1"))
}

package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"pharmledger/internal/core/apperror"
)

// PostgreSQL error codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// MapError converts driver errors into application errors. Lock contention
// becomes a concurrency conflict for the caller to retry; nothing is retried here.
func MapError(err error, entity string, entityID any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return apperror.NewConcurrentModification(entity, entityID).
			WithDetail("pg_code", pgErr.Code).
			WithCause(err)
	case pgUniqueViolation:
		return apperror.NewConflict(entity+" already exists").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewValidation("referenced record does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return err
}

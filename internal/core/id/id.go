// Package id provides identifiers for ledger entities.
// All ids are UUIDv7 so that primary keys sort by creation time.
package id

import (
	"slices"

	"github.com/google/uuid"
)

// ID identifies products, batches, movements, sales and refunds.
type ID = uuid.UUID

// New generates a time-ordered UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse is for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// SortedUnique returns the distinct ids in ascending byte order.
// Lock acquisition over several rows uses this order to avoid deadlocks.
func SortedUnique(ids []ID) []ID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b ID) int {
		return slices.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}

package numerator

import (
	"context"
	"time"
)

// Generator hands out monotonic sequence values.
// Implementations: pkg/numerator (PostgreSQL) and storage/memory.
type Generator interface {
	// NextValue returns the next value of the sequence identified by cfg and period.
	// Strict implementations must participate in the transaction carried by ctx.
	NextValue(ctx context.Context, cfg Config, opts *Options, period time.Time) (int64, error)
}

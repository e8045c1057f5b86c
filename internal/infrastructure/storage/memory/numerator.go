package memory

import (
	"context"
	"time"

	"pharmledger/internal/core/numerator"
)

var _ numerator.Generator = (*Store)(nil)

// NextValue implements numerator.Generator. Values roll back with the
// surrounding transaction, so both strategies behave as strict here.
func (s *Store) NextValue(ctx context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (int64, error) {
	var next int64
	err := s.do(ctx, func(d *state) error {
		key := cfg.Key(period)
		d.sequences[key]++
		next = d.sequences[key]
		return nil
	})
	return next, err
}

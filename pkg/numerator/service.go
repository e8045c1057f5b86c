// Package numerator provides PostgreSQL-backed sequence allocation for
// human-readable document numbers (invoices, refunds).
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "pharmledger/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier for a call. Passing the TxManager's
// GetQuerier makes strict numbering join the caller's transaction.
type QuerierFunc func(ctx context.Context) Querier

type cachedRange struct {
	current int64
	max     int64
}

// Service allocates sequence values from sys_sequences.
type Service struct {
	querier QuerierFunc
	// rangeQuerier reserves cached ranges outside the caller's transaction,
	// so a rollback cannot hand out the same range twice.
	rangeQuerier Querier

	// cacheMu protects ranges map
	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator resolving its querier per call.
func New(querier QuerierFunc) *Service {
	return &Service{
		querier: querier,
		ranges:  make(map[string]*cachedRange),
	}
}

// NewStatic creates a numerator bound to a single querier.
func NewStatic(q Querier) *Service {
	return New(func(context.Context) Querier { return q })
}

// WithRangeQuerier sets the querier used for cached range reservations.
func (s *Service) WithRangeQuerier(q Querier) *Service {
	s.rangeQuerier = q
	return s
}

func (s *Service) rangeQ(ctx context.Context) Querier {
	if s.rangeQuerier != nil {
		return s.rangeQuerier
	}
	return s.querier(ctx)
}

// NextValue implements corenumerator.Generator.
func (s *Service) NextValue(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}

	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	key := cfg.Key(period)

	switch opts.Strategy {
	case corenumerator.StrategyCached:
		return s.getNextCached(ctx, key, opts)
	default:
		return s.getNextStrict(ctx, key)
	}
}

// getNextStrict fetches the next number directly from DB using UPSERT + RETURNING.
func (s *Service) getNextStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next %s: %w", key, err)
	}
	return num, nil
}

// getNextCached hands out numbers from an in-memory range, reserving a new
// range from the database when the current one is used up.
func (s *Service) getNextCached(ctx context.Context, key string, opts *corenumerator.Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		// current_val holds the last value handed out, so the reserved
		// range is (newMax-size, newMax].
		var newMax int64
		err := s.rangeQ(ctx).QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range %s: %w", key, err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNextValue overwrites the stored value (data import) and drops any cached range.
func (s *Service) SetNextValue(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	key := cfg.Key(period)

	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, key)
	s.cacheMu.Unlock()

	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}

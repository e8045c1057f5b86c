package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "pharmledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences for a single key.
type mockQuerier struct {
	mu    sync.Mutex
	value int64
	calls int
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	switch {
	case strings.Contains(sql, "current_val = $2"):
		m.value = args[1].(int64)
	case len(args) == 2:
		m.value += args[1].(int64)
	default:
		m.value++
	}
	return &mockRow{val: m.value}
}

func TestNextValue_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()

	first, err := svc.NextValue(ctx, corenumerator.InvoiceConfig(), nil, time.Now())
	require.NoError(t, err)
	second, err := svc.NextValue(ctx, corenumerator.InvoiceConfig(), nil, time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, 2, q.calls)
}

func TestNextValue_CachedReservesRanges(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}
	cfg := corenumerator.RefundConfig()

	for want := int64(1); want <= 10; want++ {
		got, err := svc.NextValue(ctx, cfg, opts, time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 1, q.calls, "one range reservation for ten values")
	assert.Equal(t, int64(10), q.value)

	got, err := svc.NextValue(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
	assert.Equal(t, int64(20), q.value)
	assert.Equal(t, 2, q.calls)
}

func TestSetNextValue_InvalidatesCache(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}
	cfg := corenumerator.RefundConfig()
	now := time.Now()

	_, err := svc.NextValue(ctx, cfg, opts, now)
	require.NoError(t, err)

	require.NoError(t, svc.SetNextValue(ctx, cfg, now, 100))

	got, err := svc.NextValue(ctx, cfg, opts, now)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got)
}

func TestNextValue_NilService(t *testing.T) {
	var svc *Service
	_, err := svc.NextValue(context.Background(), corenumerator.InvoiceConfig(), nil, time.Now())
	assert.Error(t, err)
}

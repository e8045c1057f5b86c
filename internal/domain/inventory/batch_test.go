package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
)

func TestSetTotalKeepsSplitInvariant(t *testing.T) {
	const ppc = 100
	b := &Batch{}

	for _, total := range []int64{0, 1, 99, 100, 101, 150, 1000, 1234} {
		b.SetTotal(total, ppc)
		assert.Equal(t, total, b.TotalPieces(ppc))
		assert.Less(t, b.LooseUnitRemainder, int64(ppc))
	}

	b.SetTotal(150, ppc)
	assert.Equal(t, int64(1), b.FullContainerQuantity)
	assert.Equal(t, int64(50), b.LooseUnitRemainder)

	b.SetTotal(-5, ppc)
	assert.Equal(t, int64(0), b.TotalPieces(ppc))
}

func TestBatchStateTransitions(t *testing.T) {
	b := &Batch{ID: id.New(), State: BatchActive, FullContainerQuantity: 2, LooseUnitRemainder: 3}

	require.NoError(t, b.MarkRecalled())
	assert.Equal(t, BatchRecalled, b.State)
	assert.Equal(t, int64(0), b.TotalPieces(10))

	err := b.MarkSoftDeleted()
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	b2 := &Batch{ID: id.New(), State: BatchActive, FullContainerQuantity: 1}
	require.NoError(t, b2.MarkSoftDeleted())
	assert.Equal(t, BatchSoftDeleted, b2.State)
	assert.Equal(t, int64(10), b2.TotalPieces(10))
	assert.Error(t, b2.MarkRecalled())
}

func TestExpiryStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   ExpiryStatus
	}{
		{"yesterday", now.AddDate(0, 0, -1), ExpiryExpired},
		{"earlier today", time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), ExpiryNear},
		{"in a month", now.AddDate(0, 1, 0), ExpiryNear},
		{"in a year", now.AddDate(1, 0, 0), ExpiryGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Batch{ExpiryDate: tt.expiry}
			assert.Equal(t, tt.want, b.ExpiryStatus(now))
		})
	}
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	b := &Batch{ExpiryDate: time.Date(2026, 3, 13, 1, 0, 0, 0, time.UTC)}
	assert.Equal(t, 3, b.DaysUntilExpiry(now))

	b.ExpiryDate = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, -2, b.DaysUntilExpiry(now))
}

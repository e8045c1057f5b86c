package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmledger/internal/config"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/infrastructure/lock"
	"pharmledger/internal/infrastructure/storage/memory"
	"pharmledger/pkg/logger"
)

type countingSweeper struct {
	calls int
	asOf  time.Time
	user  string
}

func (s *countingSweeper) ProcessExpiredBatches(_ context.Context, asOf time.Time, userID string) (int, error) {
	s.calls++
	s.asOf = asOf
	s.user = userID
	return 0, nil
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		ExpiryInterval:  time.Hour,
		OutboxInterval:  time.Second,
		OutboxBatchSize: 10,
		CleanupInterval: time.Hour,
	}
}

func TestSweepExpired_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocalLocker()
	sweeper := &countingSweeper{}
	w := NewWorker(testWorkerConfig(), logger.NewNop(), locker, sweeper, nil, nil)

	held, err := locker.Obtain(ctx, expiryLockKey, time.Minute)
	require.NoError(t, err)

	require.NoError(t, w.sweepExpired(ctx))
	assert.Zero(t, sweeper.calls)

	require.NoError(t, held.Release(ctx))
	require.NoError(t, w.sweepExpired(ctx))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, SystemUserID, sweeper.user)

	// The sweep released its lock.
	again, err := locker.Obtain(ctx, expiryLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestSweepExpired_WritesOffExpiredStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := inventory.NewService(store, store)

	p := &inventory.Product{Name: "Ibuprofen 200mg", UnitsPerPack: 10, PacksPerBox: 2, SellingPrice: types.MustMoney("1.50")}
	require.NoError(t, svc.CreateProduct(ctx, p))

	now := time.Now().UTC()
	expired := now.AddDate(0, 0, -3)
	_, err := svc.ReceiveBatch(ctx, inventory.ReceiveRequest{
		ProductID:    p.ID,
		Containers:   1,
		Location:     inventory.LocationShelf,
		ReceivedDate: now.AddDate(0, -6, 0),
		ExpiryDate:   &expired,
		UserID:       "receiver",
	})
	require.NoError(t, err)

	w := NewWorker(testWorkerConfig(), logger.NewNop(), lock.NewLocalLocker(), svc, nil, nil)
	require.NoError(t, w.sweepExpired(ctx))

	summary, err := svc.StockSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Available.TotalPieces)

	movements, err := svc.ListMovements(ctx, inventory.MovementFilter{ProductID: &p.ID, Reason: inventory.ReasonExpired})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(20), movements[0].Quantity)
	assert.Equal(t, SystemUserID, movements[0].UserID)
}

func TestLockTTL(t *testing.T) {
	w := &Worker{cfg: config.WorkerConfig{ExpiryInterval: time.Hour}}
	assert.Equal(t, 30*time.Minute, w.lockTTL())

	w.cfg.ExpiryInterval = 10 * time.Second
	assert.Equal(t, time.Minute, w.lockTTL())
}

func TestCleanup_NoPostgres(t *testing.T) {
	w := NewWorker(testWorkerConfig(), logger.NewNop(), lock.NewLocalLocker(), &countingSweeper{}, nil, nil)
	assert.NoError(t, w.cleanup(context.Background()))
	assert.NoError(t, w.relayOutbox(context.Background()))
}

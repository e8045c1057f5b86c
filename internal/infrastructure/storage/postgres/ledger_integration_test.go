//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/internal/infrastructure/storage/postgres/inventory_repo"
	"pharmledger/internal/infrastructure/storage/postgres/sales_repo"
	"pharmledger/pkg/numerator"
)

type ledger struct {
	pool      *postgres.Pool
	inventory *inventory.Service
	sales     *sales.Service
	relay     *postgres.OutboxRelay
}

type countingHandler struct{ n atomic.Int64 }

func (h *countingHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	if msg.EventType == postgres.EventMovementRecorded {
		h.n.Add(1)
	}
	return nil
}

func newLedger(t *testing.T, handler postgres.OutboxHandler) *ledger {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pharmledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := postgres.NewMigrator(pool)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)

	txm := postgres.NewTxManager(pool)
	numbers := numerator.New(func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	}).WithRangeQuerier(pool)

	inv := inventory.NewService(inventory_repo.New(txm), txm,
		inventory.WithMovementPublisher(postgres.NewOutboxPublisher(txm)))
	return &ledger{
		pool:      pool,
		inventory: inv,
		sales:     sales.NewService(sales_repo.New(txm), inv, txm, numbers),
		relay:     postgres.NewOutboxRelay(pool, 100, handler),
	}
}

func (l *ledger) product(t *testing.T, ppc int64, price string) *inventory.Product {
	t.Helper()
	p := &inventory.Product{Name: "Paracetamol 500mg", UnitsPerPack: ppc, PacksPerBox: 1, SellingPrice: types.MustMoney(price)}
	require.NoError(t, l.inventory.CreateProduct(context.Background(), p))
	return p
}

func (l *ledger) receive(t *testing.T, p *inventory.Product, containers, loose int64, loc inventory.Location, received time.Time) *inventory.Batch {
	t.Helper()
	b, err := l.inventory.ReceiveBatch(context.Background(), inventory.ReceiveRequest{
		ProductID:    p.ID,
		Containers:   containers,
		LoosePieces:  loose,
		Location:     loc,
		ReceivedDate: received,
		UserID:       "receiver",
	})
	require.NoError(t, err)
	return b
}

func TestLedger_CheckoutAndRefund(t *testing.T) {
	handler := &countingHandler{}
	l := newLedger(t, handler)
	ctx := context.Background()

	p := l.product(t, 10, "1.00")
	old := l.receive(t, p, 10, 0, inventory.LocationShelf, time.Now().AddDate(0, 0, -10))
	l.receive(t, p, 10, 0, inventory.LocationShelf, time.Now().AddDate(0, 0, -1))

	sale, err := l.sales.Checkout(ctx, sales.CheckoutRequest{
		UserID:       "cashier",
		CashReceived: types.MustMoney("150.00"),
		Lines:        []sales.CheckoutLine{{ProductID: p.ID, Quantity: 150, UnitType: inventory.UnitPiece}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
	assert.True(t, sale.FinalAmount.Equal(types.MustMoney("150.00")))

	stored, err := l.sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, int64(150), stored.Lines[0].PiecesDispensed)

	_, err = l.inventory.GetBatch(ctx, old.ID)
	assert.True(t, apperror.IsNotFound(err), "oldest batch is drained first and removed")

	summary, err := l.inventory.StockSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), summary.Available.TotalPieces)

	refund, err := l.sales.CreateRefund(ctx, sales.CreateRefundRequest{
		SaleID: sale.ID, Reason: sales.RefundReasonCustomerRequest, UserID: "manager",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), refund.PiecesRestored)
	assert.Len(t, refund.Unrestorable, 1)

	storedRefund, err := l.sales.GetRefund(ctx, refund.ID)
	require.NoError(t, err)
	if assert.Len(t, storedRefund.Unrestorable, 1) {
		assert.Equal(t, int64(100), storedRefund.Unrestorable[0].Pieces)
	}

	_, err = l.sales.CreateRefund(ctx, sales.CreateRefundRequest{
		SaleID: sale.ID, Reason: sales.RefundReasonCustomerRequest, UserID: "manager",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	processed, err := l.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Positive(t, processed)
	assert.EqualValues(t, processed, handler.n.Load())
}

func TestLedger_ShortfallRollsBackSale(t *testing.T) {
	l := newLedger(t, &countingHandler{})
	ctx := context.Background()

	p := l.product(t, 1, "2.00")
	l.receive(t, p, 5, 0, inventory.LocationShelf, time.Now())

	_, err := l.sales.Checkout(ctx, sales.CheckoutRequest{
		UserID:       "cashier",
		CashReceived: types.MustMoney("100.00"),
		Lines:        []sales.CheckoutLine{{ProductID: p.ID, Quantity: 6, UnitType: inventory.UnitPiece}},
	})
	require.True(t, apperror.IsInsufficientStock(err))

	list, err := l.sales.ListSales(ctx, sales.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	movements, err := l.inventory.ListMovements(ctx, inventory.MovementFilter{ProductID: &p.ID, Reason: inventory.ReasonSale})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestLedger_ConcurrentDispenseNeverOversells(t *testing.T) {
	l := newLedger(t, &countingHandler{})
	ctx := context.Background()

	p := l.product(t, 1, "1.00")
	l.receive(t, p, 30, 0, inventory.LocationShelf, time.Now())

	var (
		wg        sync.WaitGroup
		dispensed atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := l.inventory.Dispense(ctx, p.ID, 2, "cashier")
			if err == nil {
				dispensed.Add(n)
			}
		}()
	}
	wg.Wait()

	summary, err := l.inventory.StockSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), dispensed.Load()+summary.Available.TotalPieces)
	assert.Equal(t, int64(0), summary.Available.TotalPieces)
}

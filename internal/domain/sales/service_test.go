package sales_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	t         *testing.T
	ctx       context.Context
	inventory *inventory.Service
	sales     *sales.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	inv := inventory.NewService(store, store, inventory.WithClock(clock))
	return &fixture{
		t:         t,
		ctx:       context.Background(),
		inventory: inv,
		sales:     sales.NewService(store, inv, store, store, sales.WithClock(clock)),
	}
}

func (f *fixture) stockedProduct(name string, price string, pieces int64) *inventory.Product {
	f.t.Helper()
	p := &inventory.Product{Name: name, UnitsPerPack: 5, PacksPerBox: 2, SellingPrice: types.MustMoney(price)}
	require.NoError(f.t, f.inventory.CreateProduct(f.ctx, p))
	_, err := f.inventory.ReceiveBatch(f.ctx, inventory.ReceiveRequest{
		ProductID: p.ID, LoosePieces: pieces, Location: inventory.LocationShelf, UserID: "u-1",
	})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) policy(rate int64, active bool) *sales.DiscountPolicy {
	f.t.Helper()
	p := &sales.DiscountPolicy{Name: "Senior citizen", Rate: decimal.NewFromInt(rate), IsActive: active}
	require.NoError(f.t, f.sales.CreateDiscountPolicy(f.ctx, p))
	return p
}

func (f *fixture) stock(p *inventory.Product) int64 {
	f.t.Helper()
	s, err := f.inventory.StockSummary(f.ctx, p.ID)
	require.NoError(f.t, err)
	return s.Available.TotalPieces
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.True(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)
	b := f.stockedProduct("Loratadine", "2.00", 100)
	policy := f.policy(20, true)

	sale, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:           "u-1",
		CustomerName:     "Walk-in",
		PaymentMethod:    "cash",
		DiscountPolicyID: &policy.ID,
		CashReceived:     types.MustMoney("30.00"),
		Lines: []sales.CheckoutLine{
			{ProductID: a.ID, Quantity: 1, UnitType: inventory.UnitBox},
			{ProductID: b.ID, Quantity: 1, UnitType: inventory.UnitPack},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, sales.SaleStatusCompleted, sale.Status)
	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
	assertMoney(t, "30.00", sale.TotalAmount)
	assertMoney(t, "6.00", sale.DiscountAmount)
	assertMoney(t, "24.00", sale.FinalAmount)
	assertMoney(t, "6.00", sale.ChangeAmount)
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, int64(10), sale.Lines[0].PiecesDispensed)
	assert.Equal(t, int64(5), sale.Lines[1].PiecesDispensed)

	assert.Equal(t, int64(90), f.stock(a))
	assert.Equal(t, int64(95), f.stock(b))

	stored, err := f.sales.GetSale(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 2)
	assertMoney(t, "24.00", stored.FinalAmount)

	moves, err := f.inventory.ListMovements(f.ctx, inventory.MovementFilter{SaleID: &sale.ID})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, sale.Lines[0].ID, *moves[0].LineItemID)
	assert.Equal(t, sale.Lines[1].ID, *moves[1].LineItemID)
}

func TestCheckoutShortfallDiscardsWholeSale(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)
	b := f.stockedProduct("Loratadine", "3.50", 4)

	_, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:       "u-1",
		CashReceived: types.MustMoney("100"),
		Lines: []sales.CheckoutLine{
			{ProductID: a.ID, Quantity: 10, UnitType: inventory.UnitPiece},
			{ProductID: b.ID, Quantity: 1, UnitType: inventory.UnitPack},
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, int64(1), appErr.Details["shortfall"])
	assert.Equal(t, "Loratadine", appErr.Details["product_name"])
	assert.Equal(t, 2, appErr.Details["line"])

	assert.Equal(t, int64(100), f.stock(a))
	assert.Equal(t, int64(4), f.stock(b))

	list, err := f.sales.ListSales(f.ctx, sales.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// The failed sale did not consume an invoice number.
	sale, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:       "u-1",
		CashReceived: types.MustMoney("100"),
		Lines:        []sales.CheckoutLine{{ProductID: a.ID, Quantity: 1, UnitType: inventory.UnitPiece}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
}

func TestCheckoutRejectsInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)

	_, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:       "u-1",
		CashReceived: types.MustMoney("19.99"),
		Lines:        []sales.CheckoutLine{{ProductID: a.ID, Quantity: 10, UnitType: inventory.UnitPiece}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientPayment))
	assert.Equal(t, int64(100), f.stock(a))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)

	tests := []struct {
		name string
		req  sales.CheckoutRequest
		code string
	}{
		{"no lines", sales.CheckoutRequest{}, apperror.CodeValidation},
		{"zero quantity", sales.CheckoutRequest{Lines: []sales.CheckoutLine{{ProductID: a.ID, UnitType: inventory.UnitPiece}}}, apperror.CodeInvalidQuantity},
		{"bad unit", sales.CheckoutRequest{Lines: []sales.CheckoutLine{{ProductID: a.ID, Quantity: 1, UnitType: "crate"}}}, apperror.CodeValidation},
		{"unknown product", sales.CheckoutRequest{Lines: []sales.CheckoutLine{{ProductID: id.New(), Quantity: 1, UnitType: inventory.UnitPiece}}}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sales.Checkout(f.ctx, tt.req)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCheckoutWithInactivePolicyChargesFullPrice(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)
	policy := f.policy(20, true)

	_, err := f.sales.SetDiscountPolicyActive(f.ctx, policy.ID, false)
	require.NoError(t, err)

	sale, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:           "u-1",
		DiscountPolicyID: &policy.ID,
		CashReceived:     types.MustMoney("20"),
		Lines:            []sales.CheckoutLine{{ProductID: a.ID, Quantity: 10, UnitType: inventory.UnitPiece}},
	})
	require.NoError(t, err)
	assertMoney(t, "20.00", sale.FinalAmount)
	assertMoney(t, "0", sale.DiscountRate)
}

func TestRefundLifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 100)

	sale, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:       "u-1",
		CashReceived: types.MustMoney("50"),
		Lines:        []sales.CheckoutLine{{ProductID: a.ID, Quantity: 2, UnitType: inventory.UnitPack}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(90), f.stock(a))

	refund, err := f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{
		SaleID: sale.ID, Reason: sales.RefundReasonCustomerRequest, UserID: "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "RF-2026-00001", refund.Number)
	assert.Equal(t, sales.RefundPending, refund.Status)
	assertMoney(t, "20.00", refund.AmountRefunded)
	assert.Equal(t, int64(10), refund.PiecesRestored)
	assert.Equal(t, int64(100), f.stock(a))

	_, err = f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{
		SaleID: sale.ID, Reason: sales.RefundReasonOther, UserID: "u-1",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
	assert.Equal(t, int64(100), f.stock(a), "rejected duplicate must not restore twice")

	approved, err := f.sales.ApproveRefund(f.ctx, refund.ID, "m-1")
	require.NoError(t, err)
	assert.Equal(t, sales.RefundApproved, approved.Status)
	assert.Equal(t, "m-1", approved.ApprovedBy)
	require.NotNil(t, approved.DecidedAt)

	_, err = f.sales.RejectRefund(f.ctx, refund.ID, "m-1")
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	listed, err := f.sales.ListRefunds(f.ctx, sales.RefundFilter{Status: sales.RefundApproved})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, refund.ID, listed[0].ID)
}

func TestRefundReportsUnrestorableStock(t *testing.T) {
	f := newFixture(t)
	a := f.stockedProduct("Paracetamol", "2.00", 10)

	sale, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID:       "u-1",
		CashReceived: types.MustMoney("20"),
		Lines:        []sales.CheckoutLine{{ProductID: a.ID, Quantity: 10, UnitType: inventory.UnitPiece}},
	})
	require.NoError(t, err)

	refund, err := f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{
		SaleID: sale.ID, Reason: sales.RefundReasonDamaged, UserID: "u-1",
	})
	require.NoError(t, err)
	assert.Zero(t, refund.PiecesRestored)
	require.Len(t, refund.Unrestorable, 1)
	assert.Equal(t, int64(10), refund.Unrestorable[0].Pieces)
}

func TestRefundValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{SaleID: id.New(), Reason: "because"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{SaleID: id.New(), Reason: sales.RefundReasonOther})
	assert.True(t, apperror.IsNotFound(err))

	a := f.stockedProduct("Vitamin C", "0", 10)
	free, err := f.sales.Checkout(f.ctx, sales.CheckoutRequest{
		UserID: "u-1",
		Lines:  []sales.CheckoutLine{{ProductID: a.ID, Quantity: 1, UnitType: inventory.UnitPiece}},
	})
	require.NoError(t, err)

	_, err = f.sales.CreateRefund(f.ctx, sales.CreateRefundRequest{SaleID: free.ID, Reason: sales.RefundReasonOther})
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))
}

func TestDiscountPolicies(t *testing.T) {
	f := newFixture(t)
	f.policy(10, true)
	inactive := f.policy(5, false)

	all, err := f.sales.ListDiscountPolicies(f.ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.sales.ListDiscountPolicies(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	updated, err := f.sales.SetDiscountPolicyActive(f.ctx, inactive.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)

	err = f.sales.CreateDiscountPolicy(f.ctx, &sales.DiscountPolicy{Name: "too much", Rate: decimal.NewFromInt(150)})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

package sales

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"pharmledger/internal/core/types"
)

func lines(pieces ...int64) []LineItem {
	out := make([]LineItem, 0, len(pieces))
	for _, n := range pieces {
		price := types.MustMoney("2.00")
		out = append(out, LineItem{PiecesDispensed: n, UnitPrice: price, LineTotal: types.MulPieces(price, n)})
	}
	return out
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.True(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func TestApplyDiscountWithActivePolicy(t *testing.T) {
	sale := &Sale{Lines: lines(10, 5)}
	policy := &DiscountPolicy{Rate: decimal.NewFromInt(20), IsActive: true}

	ApplyDiscount(sale, policy)

	assertMoney(t, "30.00", sale.TotalAmount)
	assertMoney(t, "20", sale.DiscountRate)
	assertMoney(t, "6.00", sale.DiscountAmount)
	assertMoney(t, "24.00", sale.FinalAmount)

	// Applying again changes nothing.
	ApplyDiscount(sale, policy)
	assertMoney(t, "24.00", sale.FinalAmount)
}

func TestApplyDiscountIgnoresInactivePolicy(t *testing.T) {
	sale := &Sale{Lines: lines(10, 5)}

	ApplyDiscount(sale, &DiscountPolicy{Rate: decimal.NewFromInt(20), IsActive: false})
	assertMoney(t, "0", sale.DiscountAmount)
	assertMoney(t, "30.00", sale.FinalAmount)

	ApplyDiscount(sale, nil)
	assertMoney(t, "30.00", sale.FinalAmount)
}

func TestApplyDiscountRoundsToCents(t *testing.T) {
	price := types.MustMoney("0.35")
	sale := &Sale{Lines: []LineItem{{PiecesDispensed: 3, UnitPrice: price, LineTotal: types.MulPieces(price, 3)}}}

	ApplyDiscount(sale, &DiscountPolicy{Rate: decimal.RequireFromString("12.5"), IsActive: true})

	assertMoney(t, "1.05", sale.TotalAmount)
	assertMoney(t, "0.13", sale.DiscountAmount)
	assertMoney(t, "0.92", sale.FinalAmount)
}

func TestFinalizePayment(t *testing.T) {
	policy := &DiscountPolicy{Rate: decimal.NewFromInt(20), IsActive: true}

	t.Run("applies discount when not yet totalled", func(t *testing.T) {
		sale := &Sale{Number: 42, Lines: lines(10, 5)}
		FinalizePayment(sale, policy, types.MustMoney("30.00"))

		assertMoney(t, "24.00", sale.FinalAmount)
		assertMoney(t, "30.00", sale.CashReceived)
		assertMoney(t, "6.00", sale.ChangeAmount)
		assert.Equal(t, "INV-000042", sale.InvoiceNumber)
	})

	t.Run("change is never negative", func(t *testing.T) {
		sale := &Sale{Number: 1, Lines: lines(10)}
		FinalizePayment(sale, nil, types.MustMoney("5.00"))
		assertMoney(t, "0", sale.ChangeAmount)
	})

	t.Run("keeps an existing invoice number", func(t *testing.T) {
		sale := &Sale{Number: 7, InvoiceNumber: "INV-LEGACY-1", Lines: lines(1)}
		FinalizePayment(sale, nil, types.MustMoney("2.00"))
		assert.Equal(t, "INV-LEGACY-1", sale.InvoiceNumber)
	})
}

func TestDiscountPolicyValidate(t *testing.T) {
	assert.Error(t, (&DiscountPolicy{Name: "x", Rate: decimal.NewFromInt(101)}).Validate())
	assert.Error(t, (&DiscountPolicy{Name: "x", Rate: decimal.NewFromInt(-1)}).Validate())
	assert.Error(t, (&DiscountPolicy{Rate: decimal.NewFromInt(5)}).Validate())
	assert.NoError(t, (&DiscountPolicy{Name: "Senior", Rate: decimal.NewFromInt(20)}).Validate())
}

package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"pharmledger/internal/core/numerator"
	"pharmledger/internal/core/types"
)

// ApplyDiscount totals the sale's lines and applies the policy's rate when the
// policy is active. The policy is read as passed; calling again with the same
// inputs gives the same amounts.
func ApplyDiscount(sale *Sale, policy *DiscountPolicy) {
	total := types.Zero()
	for _, line := range sale.Lines {
		total = total.Add(line.LineTotal)
	}
	total = types.RoundMoney(total)

	rate := decimal.Zero
	if policy != nil && policy.IsActive {
		rate = policy.Rate
	}

	discount := types.PercentOf(total, rate)
	sale.TotalAmount = total
	sale.DiscountRate = rate
	sale.DiscountAmount = discount
	sale.FinalAmount = total.Sub(discount)
}

// FinalizePayment records the cash received and the change due, applying the
// discount first if the sale has not been totalled yet. It assigns the invoice
// number from the sale number when none is set.
func FinalizePayment(sale *Sale, policy *DiscountPolicy, cashReceived types.Money) {
	if sale.FinalAmount.IsZero() {
		ApplyDiscount(sale, policy)
	}

	sale.CashReceived = types.RoundMoney(cashReceived)
	change := sale.CashReceived.Sub(sale.FinalAmount)
	if change.IsNegative() {
		change = types.Zero()
	}
	sale.ChangeAmount = change

	if sale.InvoiceNumber == "" {
		sale.InvoiceNumber = InvoiceNumber(sale.Number)
	}
}

// InvoiceNumber renders a sale number as INV-000042.
func InvoiceNumber(number int64) string {
	return numerator.InvoiceConfig().Format(time.Time{}, number)
}

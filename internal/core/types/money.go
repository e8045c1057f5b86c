// Package types provides common value types.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyPlaces is the currency precision used for stored amounts.
const MoneyPlaces = 2

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to currency precision (half away from zero).
func RoundMoney(m Money) Money {
	return m.Round(MoneyPlaces)
}

// PercentOf returns amount x rate / 100 rounded to currency precision.
func PercentOf(amount Money, rate decimal.Decimal) Money {
	return RoundMoney(amount.Mul(rate).Div(decimal.NewFromInt(100)))
}

// MulPieces multiplies a per-piece price by a piece count.
func MulPieces(price Money, pieces int64) Money {
	return RoundMoney(price.Mul(decimal.NewFromInt(pieces)))
}

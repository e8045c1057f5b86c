// Package numerator provides domain contracts for human-readable document numbers.
package numerator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number inside the
	// caller's transaction. Guarantees sequential numbers without gaps.
	// Used for invoices.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// May produce gaps after a restart. Used for refund references.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of values to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "INV", "RF")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns PREFIX-YEAR-XXXXX numbering reset every year.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// InvoiceConfig numbers sales as INV-000001 without yearly reset.
func InvoiceConfig() Config {
	return Config{
		Prefix:      "INV",
		PadWidth:    6,
		ResetPeriod: "never",
	}
}

// RefundConfig numbers refunds as RF-2026-00001.
func RefundConfig() Config {
	return DefaultConfig("RF")
}

// Key returns the sequence key for the config and period.
func (c Config) Key(period time.Time) string {
	switch c.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", c.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", c.Prefix, period.Format("2006"))
	default:
		return c.Prefix
	}
}

// Format renders a sequence value.
func (c Config) Format(period time.Time, num int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if c.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, padWidth, num)
}

// ParseNumber extracts numeric part from formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return num
}

package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	period := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "INV-000042", InvoiceConfig().Format(period, 42))
	assert.Equal(t, "RF-2026-00007", RefundConfig().Format(period, 7))
}

func TestKey(t *testing.T) {
	period := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "INV", InvoiceConfig().Key(period))
	assert.Equal(t, "RF_2026", RefundConfig().Key(period))
	assert.Equal(t, "X_2026_03", Config{Prefix: "X", ResetPeriod: "month"}.Key(period))
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(42), ParseNumber("INV-000042"))
	assert.Equal(t, int64(7), ParseNumber("RF-2026-00007"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}

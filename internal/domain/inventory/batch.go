package inventory

import (
	"fmt"
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
)

// Location is where a batch is physically stored. Empty means outside the system.
type Location string

const (
	LocationNone     Location = ""
	LocationShelf    Location = "shelf"
	LocationBackroom Location = "backroom"
)

// Internal reports whether l is a stock location managed by the ledger.
func (l Location) Internal() bool {
	return l == LocationShelf || l == LocationBackroom
}

// rank orders locations for dispensing: shelf, then backroom, then anything else.
func (l Location) rank() int {
	switch l {
	case LocationShelf:
		return 0
	case LocationBackroom:
		return 1
	default:
		return 2
	}
}

// BatchState is the lifecycle state of a batch row. Exhausted batches are
// removed from the store, so the state never appears on a persisted row.
type BatchState string

const (
	BatchActive      BatchState = "active"
	BatchRecalled    BatchState = "recalled"
	BatchSoftDeleted BatchState = "soft_deleted"
	BatchExhausted   BatchState = "exhausted"
)

// DefaultShelfLife applies when a batch is received without an expiry date.
const DefaultShelfLife = 180 * 24 * time.Hour

// NearExpiryWindow is how far ahead of expiry a batch is flagged.
const NearExpiryWindow = 180 * 24 * time.Hour

// ExpiryStatus classifies a batch against the current date.
type ExpiryStatus string

const (
	ExpiryGood       ExpiryStatus = "good"
	ExpiryNear       ExpiryStatus = "near_expiry"
	ExpiryExpired    ExpiryStatus = "expired"
	expiryDateLayout              = "2006-01-02"
)

// Batch is one receipt of stock for a product.
//
// Total pieces = FullContainerQuantity x pieces per container + LooseUnitRemainder,
// with LooseUnitRemainder always below one container after SetTotal.
type Batch struct {
	ID                    id.ID      `db:"id" json:"id"`
	ProductID             id.ID      `db:"product_id" json:"product_id"`
	FullContainerQuantity int64      `db:"full_container_quantity" json:"full_container_quantity"`
	LooseUnitRemainder    int64      `db:"loose_unit_remainder" json:"loose_unit_remainder"`
	Location              Location   `db:"location" json:"location"`
	ReceivedDate          time.Time  `db:"received_date" json:"received_date"`
	ExpiryDate            time.Time  `db:"expiry_date" json:"expiry_date"`
	State                 BatchState `db:"state" json:"state"`
	Version               int        `db:"version" json:"version"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// TotalPieces returns the piece count for the given pieces-per-container.
func (b *Batch) TotalPieces(ppc int64) int64 {
	return b.FullContainerQuantity*ppc + b.LooseUnitRemainder
}

// SetTotal recomputes the container/loose split from a piece total.
func (b *Batch) SetTotal(total, ppc int64) {
	if total < 0 {
		total = 0
	}
	b.FullContainerQuantity = total / ppc
	b.LooseUnitRemainder = total % ppc
}

// IsActive reports whether the batch takes part in selection.
func (b *Batch) IsActive() bool {
	return b.State == BatchActive
}

func (b *Batch) ensureActive() error {
	if !b.IsActive() {
		return apperror.NewBusinessRule(fmt.Sprintf("batch is %s", b.State)).
			WithDetail("batch_id", b.ID.String()).
			WithDetail("state", string(b.State))
	}
	return nil
}

// MarkRecalled moves an active batch to the recalled state with zero stock.
func (b *Batch) MarkRecalled() error {
	if err := b.ensureActive(); err != nil {
		return err
	}
	b.State = BatchRecalled
	b.FullContainerQuantity = 0
	b.LooseUnitRemainder = 0
	return nil
}

// MarkSoftDeleted withdraws an active batch from selection, keeping its quantities.
func (b *Batch) MarkSoftDeleted() error {
	if err := b.ensureActive(); err != nil {
		return err
	}
	b.State = BatchSoftDeleted
	return nil
}

// IsExpired reports whether the expiry date lies before asOf's calendar day.
func (b *Batch) IsExpired(asOf time.Time) bool {
	return b.ExpiryDate.Before(StartOfDay(asOf))
}

// ExpiryStatus classifies the batch at asOf.
func (b *Batch) ExpiryStatus(asOf time.Time) ExpiryStatus {
	if b.IsExpired(asOf) {
		return ExpiryExpired
	}
	if b.ExpiryDate.Before(StartOfDay(asOf).Add(NearExpiryWindow)) {
		return ExpiryNear
	}
	return ExpiryGood
}

// DaysUntilExpiry is negative for expired batches.
func (b *Batch) DaysUntilExpiry(asOf time.Time) int {
	return int(StartOfDay(b.ExpiryDate).Sub(StartOfDay(asOf)).Hours() / 24)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a batch date the way it is stored.
func FormatDate(t time.Time) string {
	return t.UTC().Format(expiryDateLayout)
}

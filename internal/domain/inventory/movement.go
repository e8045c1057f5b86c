package inventory

import (
	"time"

	"pharmledger/internal/core/id"
)

// Reason classifies a movement.
type Reason string

const (
	ReasonSale       Reason = "sale"
	ReasonExpired    Reason = "expired"
	ReasonDamaged    Reason = "damaged"
	ReasonReturned   Reason = "returned"
	ReasonTransfer   Reason = "transfer"
	ReasonAdjustment Reason = "adjustment"
	ReasonRecall     Reason = "recall"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonExpired, ReasonDamaged, ReasonReturned,
		ReasonTransfer, ReasonAdjustment, ReasonRecall:
		return true
	}
	return false
}

// Movement is one immutable ledger entry for a change to a batch.
// BatchID is a weak reference: the batch may have been removed since.
type Movement struct {
	ID           id.ID     `db:"id" json:"id"`
	ProductID    id.ID     `db:"product_id" json:"product_id"`
	BatchID      *id.ID    `db:"batch_id" json:"batch_id,omitempty"`
	FromLocation Location  `db:"from_location" json:"from_location"`
	ToLocation   Location  `db:"to_location" json:"to_location"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	Reason       Reason    `db:"reason" json:"reason"`
	Remarks      string    `db:"remarks" json:"remarks"`
	UserID       string    `db:"user_id" json:"user_id"`
	SaleID       *id.ID    `db:"sale_id" json:"sale_id,omitempty"`
	LineItemID   *id.ID    `db:"line_item_id" json:"line_item_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows ledger queries. Zero values mean "any".
type MovementFilter struct {
	ProductID *id.ID
	BatchID   *id.ID
	SaleID    *id.ID
	Reason    Reason
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Matches applies the filter to a single movement.
func (f MovementFilter) Matches(m *Movement) bool {
	if f.ProductID != nil && m.ProductID != *f.ProductID {
		return false
	}
	if f.BatchID != nil && (m.BatchID == nil || *m.BatchID != *f.BatchID) {
		return false
	}
	if f.SaleID != nil && (m.SaleID == nil || *m.SaleID != *f.SaleID) {
		return false
	}
	if f.Reason != "" && m.Reason != f.Reason {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !m.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// movementDraft collects the common fields of movements created by one operation.
type movementDraft struct {
	productID  id.ID
	userID     string
	saleID     *id.ID
	lineItemID *id.ID
	at         time.Time
}

func (d movementDraft) record(b *Batch, from, to Location, qty int64, reason Reason, remarks string) Movement {
	batchID := b.ID
	return Movement{
		ID:           id.New(),
		ProductID:    d.productID,
		BatchID:      &batchID,
		FromLocation: from,
		ToLocation:   to,
		Quantity:     qty,
		Reason:       reason,
		Remarks:      remarks,
		UserID:       d.userID,
		SaleID:       d.saleID,
		LineItemID:   d.lineItemID,
		CreatedAt:    d.at,
	}
}

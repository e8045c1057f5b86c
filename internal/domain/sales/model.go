// Package sales implements checkout, the sale calculator, discount policies
// and refunds on top of the inventory ledger.
package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
)

// Sale is the header of one checkout.
type Sale struct {
	ID               id.ID           `db:"id" json:"id"`
	Number           int64           `db:"number" json:"number"`
	InvoiceNumber    string          `db:"invoice_number" json:"invoice_number"`
	UserID           string          `db:"user_id" json:"user_id"`
	CustomerName     string          `db:"customer_name" json:"customer_name"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	DiscountPolicyID *id.ID          `db:"discount_policy_id" json:"discount_policy_id,omitempty"`
	TotalAmount      types.Money     `db:"total_amount" json:"total_amount"`
	DiscountRate     decimal.Decimal `db:"discount_rate" json:"discount_rate"`
	DiscountAmount   types.Money     `db:"discount_amount" json:"discount_amount"`
	FinalAmount      types.Money     `db:"final_amount" json:"final_amount"`
	CashReceived     types.Money     `db:"cash_received" json:"cash_received"`
	ChangeAmount     types.Money     `db:"change_amount" json:"change_amount"`
	Status           SaleStatus      `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`

	Lines []LineItem `db:"-" json:"lines"`
}

// LineItem is one product line of a sale.
type LineItem struct {
	ID              id.ID              `db:"id" json:"id"`
	SaleID          id.ID              `db:"sale_id" json:"sale_id"`
	LineNo          int                `db:"line_no" json:"line_no"`
	ProductID       id.ID              `db:"product_id" json:"product_id"`
	ProductName     string             `db:"product_name" json:"product_name"`
	Quantity        int64              `db:"quantity" json:"quantity"`
	UnitType        inventory.UnitType `db:"unit_type" json:"unit_type"`
	PiecesDispensed int64              `db:"pieces_dispensed" json:"pieces_dispensed"`
	UnitPrice       types.Money        `db:"unit_price" json:"unit_price"`
	LineTotal       types.Money        `db:"line_total" json:"line_total"`
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// DiscountPolicy is a named discount rate in percent.
type DiscountPolicy struct {
	ID        id.ID           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Rate      decimal.Decimal `db:"rate" json:"rate"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// Validate checks the policy before it is stored.
func (p *DiscountPolicy) Validate() error {
	if p.Name == "" {
		return apperror.NewValidation("discount policy name is required")
	}
	if p.Rate.IsNegative() || p.Rate.GreaterThan(hundred) {
		return apperror.NewValidation("discount rate must be between 0 and 100").
			WithDetail("rate", p.Rate.String())
	}
	return nil
}

// RefundStatus is the approval state of a refund.
type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

// RefundReason classifies why a sale was refunded.
type RefundReason string

const (
	RefundReasonExpired         RefundReason = "expired"
	RefundReasonDamaged         RefundReason = "damaged"
	RefundReasonWrongItem       RefundReason = "wrong_item"
	RefundReasonCustomerRequest RefundReason = "customer_request"
	RefundReasonOvercharge      RefundReason = "overcharge"
	RefundReasonOther           RefundReason = "other"
)

// Valid reports whether r is a known reason.
func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonExpired, RefundReasonDamaged, RefundReasonWrongItem,
		RefundReasonCustomerRequest, RefundReasonOvercharge, RefundReasonOther:
		return true
	}
	return false
}

// Refund returns a whole completed sale.
type Refund struct {
	ID              id.ID        `db:"id" json:"id"`
	Number          string       `db:"number" json:"number"`
	SaleID          id.ID        `db:"sale_id" json:"sale_id"`
	AmountRefunded  types.Money  `db:"amount_refunded" json:"amount_refunded"`
	Reason          RefundReason `db:"reason" json:"reason"`
	ReasonDetails   string       `db:"reason_details" json:"reason_details"`
	PaymentMethod   string       `db:"payment_method" json:"payment_method"`
	ReferenceNumber string       `db:"reference_number" json:"reference_number"`
	Status          RefundStatus `db:"status" json:"status"`
	PiecesRestored  int64        `db:"pieces_restored" json:"pieces_restored"`
	ProcessedBy     string       `db:"processed_by" json:"processed_by"`
	ApprovedBy      string       `db:"approved_by" json:"approved_by,omitempty"`
	DecidedAt       *time.Time   `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`

	// Unrestorable lists sale movements whose stock could not go back to a batch.
	Unrestorable []inventory.Unrestorable `db:"unrestorable" json:"unrestorable,omitempty"`
}

// RefundFilter narrows refund listings.
type RefundFilter struct {
	SaleID *id.ID
	Status RefundStatus
	Limit  int
	Offset int
}

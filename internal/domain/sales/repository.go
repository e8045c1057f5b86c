package sales

import (
	"context"

	"pharmledger/internal/core/id"
)

// Repository persists sales, discount policies and refunds within the
// transaction carried by ctx.
type Repository interface {
	CreateSale(ctx context.Context, sale *Sale) error
	// UpdateSale stores the header; lines are immutable once created.
	UpdateSale(ctx context.Context, sale *Sale) error
	CreateLineItems(ctx context.Context, lines []LineItem) error
	// GetSale returns the sale with its lines.
	GetSale(ctx context.Context, saleID id.ID) (*Sale, error)
	// LockSale reads the sale header and holds a row lock until the transaction ends.
	LockSale(ctx context.Context, saleID id.ID) (*Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, error)

	CreateDiscountPolicy(ctx context.Context, p *DiscountPolicy) error
	UpdateDiscountPolicy(ctx context.Context, p *DiscountPolicy) error
	GetDiscountPolicy(ctx context.Context, policyID id.ID) (*DiscountPolicy, error)
	ListDiscountPolicies(ctx context.Context, activeOnly bool) ([]*DiscountPolicy, error)

	CreateRefund(ctx context.Context, r *Refund) error
	UpdateRefund(ctx context.Context, r *Refund) error
	GetRefund(ctx context.Context, refundID id.ID) (*Refund, error)
	LockRefund(ctx context.Context, refundID id.ID) (*Refund, error)
	// GetRefundBySale returns NotFound when the sale has no refund.
	GetRefundBySale(ctx context.Context, saleID id.ID) (*Refund, error)
	ListRefunds(ctx context.Context, filter RefundFilter) ([]*Refund, error)
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"pharmledger/internal/core/id"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
)

// --- Checkout ---

// CheckoutRequest represents a sale entered at the till.
type CheckoutRequest struct {
	CustomerName     string                `json:"customerName,omitempty" binding:"max=200"`
	PaymentMethod    string                `json:"paymentMethod,omitempty" binding:"max=50"`
	DiscountPolicyID string                `json:"discountPolicyId,omitempty" binding:"omitempty,uuid"`
	CashReceived     types.Money           `json:"cashReceived"`
	Lines            []CheckoutLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// CheckoutLineRequest is one product line of a checkout.
type CheckoutLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
	UnitType  string `json:"unitType" binding:"required,unit_type"`
}

// ToRequest converts the body to a domain checkout request.
func (r *CheckoutRequest) ToRequest(userID string) sales.CheckoutRequest {
	req := sales.CheckoutRequest{
		UserID:           userID,
		CustomerName:     r.CustomerName,
		PaymentMethod:    r.PaymentMethod,
		DiscountPolicyID: optionalID(r.DiscountPolicyID),
		CashReceived:     r.CashReceived,
		Lines:            make([]sales.CheckoutLine, 0, len(r.Lines)),
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	for _, l := range r.Lines {
		productID, _ := id.Parse(l.ProductID)
		req.Lines = append(req.Lines, sales.CheckoutLine{
			ProductID: productID,
			Quantity:  l.Quantity,
			UnitType:  inventory.UnitType(l.UnitType),
		})
	}
	return req
}

// SaleListRequest holds sale query parameters.
type SaleListRequest struct {
	PaginationRequest
	UserID string     `form:"userId"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts query parameters to a domain filter.
func (r *SaleListRequest) ToFilter() sales.SaleFilter {
	return sales.SaleFilter{
		UserID: r.UserID,
		From:   r.From,
		To:     r.To,
		Limit:  r.Limit,
		Offset: r.Offset,
	}
}

// SaleResponse represents a sale with its lines.
type SaleResponse struct {
	ID               string             `json:"id"`
	InvoiceNumber    string             `json:"invoiceNumber"`
	UserID           string             `json:"userId"`
	CustomerName     string             `json:"customerName,omitempty"`
	PaymentMethod    string             `json:"paymentMethod"`
	DiscountPolicyID *string            `json:"discountPolicyId,omitempty"`
	TotalAmount      string             `json:"totalAmount"`
	DiscountRate     string             `json:"discountRate"`
	DiscountAmount   string             `json:"discountAmount"`
	FinalAmount      string             `json:"finalAmount"`
	CashReceived     string             `json:"cashReceived"`
	ChangeAmount     string             `json:"changeAmount"`
	Status           string             `json:"status"`
	CreatedAt        time.Time          `json:"createdAt"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Lines            []LineItemResponse `json:"lines,omitempty"`
}

// LineItemResponse represents one sale line.
type LineItemResponse struct {
	ID              string `json:"id"`
	LineNo          int    `json:"lineNo"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName"`
	Quantity        int64  `json:"quantity"`
	UnitType        string `json:"unitType"`
	PiecesDispensed int64  `json:"piecesDispensed"`
	UnitPrice       string `json:"unitPrice"`
	LineTotal       string `json:"lineTotal"`
}

// FromSale creates SaleResponse from a domain sale.
func FromSale(s *sales.Sale) SaleResponse {
	resp := SaleResponse{
		ID:               s.ID.String(),
		InvoiceNumber:    s.InvoiceNumber,
		UserID:           s.UserID,
		CustomerName:     s.CustomerName,
		PaymentMethod:    s.PaymentMethod,
		DiscountPolicyID: idString(s.DiscountPolicyID),
		TotalAmount:      money(s.TotalAmount),
		DiscountRate:     s.DiscountRate.String(),
		DiscountAmount:   money(s.DiscountAmount),
		FinalAmount:      money(s.FinalAmount),
		CashReceived:     money(s.CashReceived),
		ChangeAmount:     money(s.ChangeAmount),
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		CompletedAt:      s.CompletedAt,
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, LineItemResponse{
			ID:              l.ID.String(),
			LineNo:          l.LineNo,
			ProductID:       l.ProductID.String(),
			ProductName:     l.ProductName,
			Quantity:        l.Quantity,
			UnitType:        string(l.UnitType),
			PiecesDispensed: l.PiecesDispensed,
			UnitPrice:       money(l.UnitPrice),
			LineTotal:       money(l.LineTotal),
		})
	}
	return resp
}

// --- Discount policies ---

// CreateDiscountPolicyRequest represents a new discount policy.
type CreateDiscountPolicyRequest struct {
	Name     string          `json:"name" binding:"required,max=100"`
	Rate     decimal.Decimal `json:"rate"`
	IsActive *bool           `json:"isActive,omitempty"`
}

// ToEntity converts request to domain entity. Policies start active.
func (r *CreateDiscountPolicyRequest) ToEntity() *sales.DiscountPolicy {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &sales.DiscountPolicy{Name: r.Name, Rate: r.Rate, IsActive: active}
}

// SetActiveRequest switches a policy on or off.
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// DiscountPolicyResponse represents a discount policy.
type DiscountPolicyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rate      string    `json:"rate"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromDiscountPolicy creates DiscountPolicyResponse from a domain policy.
func FromDiscountPolicy(p *sales.DiscountPolicy) DiscountPolicyResponse {
	return DiscountPolicyResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Rate:      p.Rate.String(),
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// --- Refunds ---

// CreateRefundRequest asks for a full refund of a sale.
type CreateRefundRequest struct {
	SaleID          string `json:"saleId" binding:"required,uuid"`
	Reason          string `json:"reason" binding:"required,oneof=expired damaged wrong_item customer_request overcharge other"`
	ReasonDetails   string `json:"reasonDetails,omitempty" binding:"max=1000"`
	PaymentMethod   string `json:"paymentMethod,omitempty" binding:"max=50"`
	ReferenceNumber string `json:"referenceNumber,omitempty" binding:"max=100"`
}

// ToRequest converts the body to a domain refund request.
func (r *CreateRefundRequest) ToRequest(userID string) sales.CreateRefundRequest {
	saleID, _ := id.Parse(r.SaleID)
	return sales.CreateRefundRequest{
		SaleID:          saleID,
		Reason:          sales.RefundReason(r.Reason),
		ReasonDetails:   r.ReasonDetails,
		PaymentMethod:   r.PaymentMethod,
		ReferenceNumber: r.ReferenceNumber,
		UserID:          userID,
	}
}

// RefundListRequest holds refund query parameters.
type RefundListRequest struct {
	PaginationRequest
	SaleID string `form:"saleId" binding:"omitempty,uuid"`
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

// ToFilter converts query parameters to a domain filter.
func (r *RefundListRequest) ToFilter() sales.RefundFilter {
	return sales.RefundFilter{
		SaleID: optionalID(r.SaleID),
		Status: sales.RefundStatus(r.Status),
		Limit:  r.Limit,
		Offset: r.Offset,
	}
}

// UnrestorableResponse is a sale movement whose stock could not be put back.
type UnrestorableResponse struct {
	MovementID string  `json:"movementId"`
	ProductID  string  `json:"productId"`
	BatchID    *string `json:"batchId,omitempty"`
	Pieces     int64   `json:"pieces"`
	Cause      string  `json:"cause"`
}

// RefundResponse represents a refund.
type RefundResponse struct {
	ID              string                 `json:"id"`
	Number          string                 `json:"number"`
	SaleID          string                 `json:"saleId"`
	AmountRefunded  string                 `json:"amountRefunded"`
	Reason          string                 `json:"reason"`
	ReasonDetails   string                 `json:"reasonDetails,omitempty"`
	PaymentMethod   string                 `json:"paymentMethod,omitempty"`
	ReferenceNumber string                 `json:"referenceNumber,omitempty"`
	Status          string                 `json:"status"`
	PiecesRestored  int64                  `json:"piecesRestored"`
	ProcessedBy     string                 `json:"processedBy"`
	ApprovedBy      string                 `json:"approvedBy,omitempty"`
	DecidedAt       *time.Time             `json:"decidedAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	Unrestorable    []UnrestorableResponse `json:"unrestorable,omitempty"`
}

// FromRefund creates RefundResponse from a domain refund.
func FromRefund(r *sales.Refund) RefundResponse {
	resp := RefundResponse{
		ID:              r.ID.String(),
		Number:          r.Number,
		SaleID:          r.SaleID.String(),
		AmountRefunded:  money(r.AmountRefunded),
		Reason:          string(r.Reason),
		ReasonDetails:   r.ReasonDetails,
		PaymentMethod:   r.PaymentMethod,
		ReferenceNumber: r.ReferenceNumber,
		Status:          string(r.Status),
		PiecesRestored:  r.PiecesRestored,
		ProcessedBy:     r.ProcessedBy,
		ApprovedBy:      r.ApprovedBy,
		DecidedAt:       r.DecidedAt,
		CreatedAt:       r.CreatedAt,
	}
	for _, u := range r.Unrestorable {
		resp.Unrestorable = append(resp.Unrestorable, UnrestorableResponse{
			MovementID: u.MovementID.String(),
			ProductID:  u.ProductID.String(),
			BatchID:    idString(u.BatchID),
			Pieces:     u.Pieces,
			Cause:      u.Cause,
		})
	}
	return resp
}

func money(m types.Money) string {
	return m.StringFixed(types.MoneyPlaces)
}

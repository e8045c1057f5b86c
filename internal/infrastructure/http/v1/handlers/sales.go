package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/http/v1/dto"
)

// SalesHandler handles checkout, discount policies and refunds.
type SalesHandler struct {
	*BaseHandler
	service *sales.Service
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(base *BaseHandler, service *sales.Service) *SalesHandler {
	return &SalesHandler{BaseHandler: base, service: service}
}

// --- Sales ---

// Checkout handles POST /sales
func (h *SalesHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.service.Checkout(c.Request.Context(), req.ToRequest(h.GetUserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSale(sale))
}

// GetSale handles GET /sales/:id
func (h *SalesHandler) GetSale(c *gin.Context) {
	saleID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	sale, err := h.service.GetSale(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSale(sale))
}

// ListSales handles GET /sales
func (h *SalesHandler) ListSales(c *gin.Context) {
	var req dto.SaleListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	list, err := h.service.ListSales(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.SaleResponse, 0, len(list))
	for _, s := range list {
		items = append(items, dto.FromSale(s))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items, req.PaginationRequest))
}

// --- Discount policies ---

// CreateDiscountPolicy handles POST /discount-policies
func (h *SalesHandler) CreateDiscountPolicy(c *gin.Context) {
	var req dto.CreateDiscountPolicyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToEntity()
	if err := h.service.CreateDiscountPolicy(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDiscountPolicy(p))
}

// ListDiscountPolicies handles GET /discount-policies?active=true
func (h *SalesHandler) ListDiscountPolicies(c *gin.Context) {
	policies, err := h.service.ListDiscountPolicies(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.DiscountPolicyResponse, 0, len(policies))
	for _, p := range policies {
		items = append(items, dto.FromDiscountPolicy(p))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetDiscountPolicy handles GET /discount-policies/:id
func (h *SalesHandler) GetDiscountPolicy(c *gin.Context) {
	policyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.GetDiscountPolicy(c.Request.Context(), policyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromDiscountPolicy(p))
}

// SetDiscountPolicyActive handles PATCH /discount-policies/:id
func (h *SalesHandler) SetDiscountPolicyActive(c *gin.Context) {
	policyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.SetDiscountPolicyActive(c.Request.Context(), policyID, *req.IsActive)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDiscountPolicy(p))
}

// --- Refunds ---

// CreateRefund handles POST /refunds
func (h *SalesHandler) CreateRefund(c *gin.Context) {
	var req dto.CreateRefundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	refund, err := h.service.CreateRefund(c.Request.Context(), req.ToRequest(h.GetUserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromRefund(refund))
}

// GetRefund handles GET /refunds/:id
func (h *SalesHandler) GetRefund(c *gin.Context) {
	refundID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	refund, err := h.service.GetRefund(c.Request.Context(), refundID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromRefund(refund))
}

// ListRefunds handles GET /refunds
func (h *SalesHandler) ListRefunds(c *gin.Context) {
	var req dto.RefundListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	refunds, err := h.service.ListRefunds(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.RefundResponse, 0, len(refunds))
	for _, r := range refunds {
		items = append(items, dto.FromRefund(r))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items, req.PaginationRequest))
}

// ApproveRefund handles POST /refunds/:id/approve
func (h *SalesHandler) ApproveRefund(c *gin.Context) {
	h.decideRefund(c, h.service.ApproveRefund)
}

// RejectRefund handles POST /refunds/:id/reject
func (h *SalesHandler) RejectRefund(c *gin.Context) {
	h.decideRefund(c, h.service.RejectRefund)
}

func (h *SalesHandler) decideRefund(c *gin.Context, decide func(ctx context.Context, refundID id.ID, approverID string) (*sales.Refund, error)) {
	refundID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	refund, err := decide(c.Request.Context(), refundID, h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRefund(refund))
}

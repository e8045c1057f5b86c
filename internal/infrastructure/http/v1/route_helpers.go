package v1

import (
	"github.com/gin-gonic/gin"

	appctx "pharmledger/internal/core/context"
	"pharmledger/internal/infrastructure/http/v1/handlers"
	"pharmledger/internal/infrastructure/http/v1/middleware"
)

// registerInventoryRoutes registers products, batches and the movement ledger.
// Stock corrections and removals outside a sale need the manager role.
func registerInventoryRoutes(rg *gin.RouterGroup, h *handlers.InventoryHandler) {
	manager := middleware.RequireRole(appctx.RoleManager)

	products := rg.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.POST("", manager, h.CreateProduct)
		products.GET("/:id", h.GetProduct)
		products.GET("/:id/stock", h.StockSummary)
		products.POST("/:id/batches", h.ReceiveBatch)
		products.POST("/:id/dispense", h.Dispense)
		products.POST("/:id/transfer", manager, h.Transfer)
	}

	batches := rg.Group("/batches")
	{
		batches.GET("/:id", h.GetBatch)
		batches.DELETE("/:id", manager, h.DeleteBatch)
		batches.POST("/:id/recall", manager, h.Recall)
		batches.POST("/:id/adjust", manager, h.Adjust)
		batches.POST("/:id/stock-out", manager, h.StockOut)
	}

	rg.POST("/expiry/run", manager, h.ProcessExpired)

	movements := rg.Group("/movements")
	{
		movements.GET("", h.ListMovements)
		movements.GET("/export", manager, h.ExportMovements)
	}
}

// registerSalesRoutes registers checkout, discount policies and refunds.
// Checkout and refund creation accept an idempotency key.
func registerSalesRoutes(rg *gin.RouterGroup, h *handlers.SalesHandler, idempotent gin.HandlerFunc) {
	manager := middleware.RequireRole(appctx.RoleManager)

	salesGroup := rg.Group("/sales")
	{
		salesGroup.GET("", h.ListSales)
		salesGroup.POST("", idempotent, h.Checkout)
		salesGroup.GET("/:id", h.GetSale)
	}

	policies := rg.Group("/discount-policies")
	{
		policies.GET("", h.ListDiscountPolicies)
		policies.POST("", manager, h.CreateDiscountPolicy)
		policies.GET("/:id", h.GetDiscountPolicy)
		policies.PATCH("/:id", manager, h.SetDiscountPolicyActive)
	}

	refunds := rg.Group("/refunds")
	{
		refunds.GET("", h.ListRefunds)
		refunds.POST("", idempotent, h.CreateRefund)
		refunds.GET("/:id", h.GetRefund)
		refunds.POST("/:id/approve", manager, h.ApproveRefund)
		refunds.POST("/:id/reject", manager, h.RejectRefund)
	}
}

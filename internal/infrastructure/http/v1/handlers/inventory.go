package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/infrastructure/export"
	"pharmledger/internal/infrastructure/http/v1/dto"
)

// maxExportRows caps a single spreadsheet export.
const maxExportRows = 50000

// InventoryHandler handles products, batches, stock operations and the movement ledger.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// --- Products ---

// CreateProduct handles POST /products
func (h *InventoryHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToEntity()
	if err := h.service.CreateProduct(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromProduct(p))
}

// GetProduct handles GET /products/:id
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromProduct(p))
}

// ListProducts handles GET /products
func (h *InventoryHandler) ListProducts(c *gin.Context) {
	var req dto.ProductListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	products, err := h.service.ListProducts(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		items = append(items, dto.FromProduct(p))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items, req.PaginationRequest))
}

// StockSummary handles GET /products/:id/stock
func (h *InventoryHandler) StockSummary(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.StockSummary(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromStockSummary(summary))
}

// --- Stock operations on a product ---

// ReceiveBatch handles POST /products/:id/batches
func (h *InventoryHandler) ReceiveBatch(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b, err := h.service.ReceiveBatch(c.Request.Context(), req.ToRequest(productID, h.GetUserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromBatch(b))
}

// Dispense handles POST /products/:id/dispense
func (h *InventoryHandler) Dispense(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.DispenseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.DispenseForSale(c.Request.Context(), inventory.DispenseRequest{
		ProductID: productID,
		Pieces:    req.Pieces,
		UserID:    h.GetUserID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.DispenseResponse{
		Dispensed: res.Dispensed,
		Shortfall: res.Shortfall,
		Movements: dto.FromMovements(res.Movements),
	})
}

// Transfer handles POST /products/:id/transfer
func (h *InventoryHandler) Transfer(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	shortfall, movements, err := h.service.Transfer(c.Request.Context(), req.ToRequest(productID, h.GetUserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.TransferResponse{
		Transferred: req.Pieces - shortfall,
		Shortfall:   shortfall,
		Movements:   dto.FromMovements(movements),
	})
}

// --- Batches ---

// GetBatch handles GET /batches/:id
func (h *InventoryHandler) GetBatch(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.service.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBatch(b))
}

// DeleteBatch handles DELETE /batches/:id
func (h *InventoryHandler) DeleteBatch(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.SoftDeleteBatch(c.Request.Context(), batchID, h.GetUserID(c)); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Recall handles POST /batches/:id/recall
func (h *InventoryHandler) Recall(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RecallRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pieces, err := h.service.Recall(c.Request.Context(), inventory.RecallRequest{
		BatchID:    batchID,
		Containers: req.Containers,
		Reason:     req.Reason,
		UserID:     h.GetUserID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.QuantityResponse{Pieces: pieces})
}

// Adjust handles POST /batches/:id/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	applied, err := h.service.Adjust(c.Request.Context(), inventory.AdjustRequest{
		BatchID: batchID,
		Delta:   req.Delta,
		Reason:  inventory.Reason(req.Reason),
		Remarks: req.Remarks,
		UserID:  h.GetUserID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.QuantityResponse{Pieces: applied})
}

// StockOut handles POST /batches/:id/stock-out
func (h *InventoryHandler) StockOut(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.StockOutRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	removed, err := h.service.StockOutExpired(c.Request.Context(), inventory.StockOutRequest{
		BatchID: batchID,
		Reason:  req.Reason,
		UserID:  h.GetUserID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.QuantityResponse{Pieces: removed})
}

// ProcessExpired handles POST /expiry/run
func (h *InventoryHandler) ProcessExpired(c *gin.Context) {
	var req dto.ExpireRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	asOf := time.Now().UTC()
	if t := req.AsOf.TimePtr(); t != nil {
		asOf = *t
	}

	n, err := h.service.ProcessExpiredBatches(c.Request.Context(), asOf, h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ExpireResponse{Processed: n})
}

// --- Movements ---

// ListMovements handles GET /movements
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	movements, err := h.service.ListMovements(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.FromMovements(movements), req.PaginationRequest))
}

// ExportMovements handles GET /movements/export and streams an XLSX workbook.
// Paging parameters are ignored; the export is capped at maxExportRows.
func (h *InventoryHandler) ExportMovements(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := req.ToFilter()
	filter.Limit = maxExportRows
	filter.Offset = 0

	movements, err := h.service.ListMovements(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	names := make(map[id.ID]string)
	for _, m := range movements {
		if _, seen := names[m.ProductID]; seen {
			continue
		}
		p, err := h.service.GetProduct(ctx, m.ProductID)
		if err != nil {
			if apperror.IsNotFound(err) {
				names[m.ProductID] = m.ProductID.String()
				continue
			}
			h.Error(c, err)
			return
		}
		names[m.ProductID] = p.Name
	}

	var buf bytes.Buffer
	if err := export.WriteMovements(&buf, movements, names); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	filename := fmt.Sprintf("movements-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

package dto

import (
	"time"

	"pharmledger/internal/core/id"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
)

// --- Products ---

// CreateProductRequest represents a request to create a product.
type CreateProductRequest struct {
	Name         string      `json:"name" binding:"required,max=200"`
	UnitsPerPack int64       `json:"unitsPerPack" binding:"required,min=1"`
	PacksPerBox  int64       `json:"packsPerBox" binding:"required,min=1"`
	SellingPrice types.Money `json:"sellingPrice"`
}

// ToEntity converts request to domain entity.
func (r *CreateProductRequest) ToEntity() *inventory.Product {
	return &inventory.Product{
		Name:         r.Name,
		UnitsPerPack: r.UnitsPerPack,
		PacksPerBox:  r.PacksPerBox,
		SellingPrice: r.SellingPrice,
	}
}

// ProductListRequest holds product list query parameters.
type ProductListRequest struct {
	PaginationRequest
	Search         string `form:"search"`
	IncludeDeleted bool   `form:"includeDeleted"`
}

// ToFilter converts query parameters to a domain filter.
func (r *ProductListRequest) ToFilter() inventory.ProductFilter {
	return inventory.ProductFilter{
		Search:         r.Search,
		IncludeDeleted: r.IncludeDeleted,
		Limit:          r.Limit,
		Offset:         r.Offset,
	}
}

// ProductResponse represents a product.
type ProductResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	UnitsPerPack       int64     `json:"unitsPerPack"`
	PacksPerBox        int64     `json:"packsPerBox"`
	PiecesPerContainer int64     `json:"piecesPerContainer"`
	SellingPrice       string    `json:"sellingPrice"`
	IsDeleted          bool      `json:"isDeleted"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// FromProduct creates ProductResponse from a domain product.
func FromProduct(p *inventory.Product) ProductResponse {
	return ProductResponse{
		ID:                 p.ID.String(),
		Name:               p.Name,
		UnitsPerPack:       p.UnitsPerPack,
		PacksPerBox:        p.PacksPerBox,
		PiecesPerContainer: p.PiecesPerContainer(),
		SellingPrice:       p.SellingPrice.StringFixed(types.MoneyPlaces),
		IsDeleted:          p.IsDeleted,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// --- Batches ---

// ReceiveBatchRequest represents incoming stock for a product.
type ReceiveBatchRequest struct {
	Containers   int64  `json:"containers" binding:"min=0"`
	LoosePieces  int64  `json:"loosePieces" binding:"min=0"`
	Location     string `json:"location" binding:"omitempty,location"`
	ReceivedDate *Date  `json:"receivedDate,omitempty"`
	ExpiryDate   *Date  `json:"expiryDate,omitempty"`
	Remarks      string `json:"remarks,omitempty" binding:"max=500"`
}

// ToRequest converts the body to a domain receive request.
func (r *ReceiveBatchRequest) ToRequest(productID id.ID, userID string) inventory.ReceiveRequest {
	req := inventory.ReceiveRequest{
		ProductID:   productID,
		Containers:  r.Containers,
		LoosePieces: r.LoosePieces,
		Location:    inventory.Location(r.Location),
		ExpiryDate:  r.ExpiryDate.TimePtr(),
		UserID:      userID,
		Remarks:     r.Remarks,
	}
	if t := r.ReceivedDate.TimePtr(); t != nil {
		req.ReceivedDate = *t
	}
	return req
}

// BatchResponse represents a batch.
type BatchResponse struct {
	ID                    string `json:"id"`
	ProductID             string `json:"productId"`
	FullContainerQuantity int64  `json:"fullContainerQuantity"`
	LooseUnitRemainder    int64  `json:"looseUnitRemainder"`
	Location              string `json:"location"`
	ReceivedDate          Date   `json:"receivedDate"`
	ExpiryDate            Date   `json:"expiryDate"`
	State                 string `json:"state"`
	Version               int    `json:"version"`

	TotalPieces     *int64 `json:"totalPieces,omitempty"`
	ExpiryStatus    string `json:"expiryStatus,omitempty"`
	DaysUntilExpiry *int   `json:"daysUntilExpiry,omitempty"`
}

// FromBatch creates BatchResponse from a domain batch.
func FromBatch(b *inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:                    b.ID.String(),
		ProductID:             b.ProductID.String(),
		FullContainerQuantity: b.FullContainerQuantity,
		LooseUnitRemainder:    b.LooseUnitRemainder,
		Location:              string(b.Location),
		ReceivedDate:          Date{Time: b.ReceivedDate},
		ExpiryDate:            Date{Time: b.ExpiryDate},
		State:                 string(b.State),
		Version:               b.Version,
	}
}

// FromBatchView creates BatchResponse with stock and expiry annotations.
func FromBatchView(v inventory.BatchView) BatchResponse {
	resp := FromBatch(v.Batch)
	total, days := v.TotalPieces, v.DaysUntilExpiry
	resp.TotalPieces = &total
	resp.ExpiryStatus = string(v.ExpiryStatus)
	resp.DaysUntilExpiry = &days
	return resp
}

// StockBreakdownResponse expresses a piece count in boxes, packs and pieces.
type StockBreakdownResponse struct {
	TotalPieces int64 `json:"totalPieces"`
	Boxes       int64 `json:"boxes"`
	Packs       int64 `json:"packs"`
	Pieces      int64 `json:"pieces"`
}

// StockSummaryResponse is a product's available stock.
type StockSummaryResponse struct {
	Product   ProductResponse        `json:"product"`
	Available StockBreakdownResponse `json:"available"`
	Batches   []BatchResponse        `json:"batches"`
}

// FromStockSummary creates StockSummaryResponse from a domain summary.
func FromStockSummary(s *inventory.StockSummary) StockSummaryResponse {
	batches := make([]BatchResponse, 0, len(s.Batches))
	for _, v := range s.Batches {
		batches = append(batches, FromBatchView(v))
	}
	return StockSummaryResponse{
		Product: FromProduct(s.Product),
		Available: StockBreakdownResponse{
			TotalPieces: s.Available.TotalPieces,
			Boxes:       s.Available.Boxes,
			Packs:       s.Available.Packs,
			Pieces:      s.Available.Pieces,
		},
		Batches: batches,
	}
}

// --- Operations ---

// DispenseRequest removes pieces in FIFO order outside a sale.
type DispenseRequest struct {
	Pieces int64 `json:"pieces" binding:"min=0"`
}

// DispenseResponse reports the pieces taken and the ledger entries written.
type DispenseResponse struct {
	Dispensed int64              `json:"dispensed"`
	Shortfall int64              `json:"shortfall"`
	Movements []MovementResponse `json:"movements"`
}

// TransferRequest moves pieces to another location. Destinations other than
// shelf and backroom take the stock out of the ledger.
type TransferRequest struct {
	Pieces      int64  `json:"pieces" binding:"required,min=1"`
	Destination string `json:"destination" binding:"required,max=64"`
	Remarks     string `json:"remarks,omitempty" binding:"max=500"`
}

// ToRequest converts the body to a domain transfer request.
func (r *TransferRequest) ToRequest(productID id.ID, userID string) inventory.TransferRequest {
	return inventory.TransferRequest{
		ProductID:   productID,
		Pieces:      r.Pieces,
		Destination: inventory.Location(r.Destination),
		UserID:      userID,
		Remarks:     r.Remarks,
	}
}

// TransferResponse reports the transfer outcome.
type TransferResponse struct {
	Transferred int64              `json:"transferred"`
	Shortfall   int64              `json:"shortfall"`
	Movements   []MovementResponse `json:"movements"`
}

// RecallRequest pulls whole containers from a batch.
type RecallRequest struct {
	Containers int64  `json:"containers" binding:"required,min=1"`
	Reason     string `json:"reason" binding:"required,max=500"`
}

// AdjustRequest corrects a batch by a signed piece delta.
type AdjustRequest struct {
	Delta   int64  `json:"delta" binding:"required"`
	Reason  string `json:"reason,omitempty" binding:"omitempty,oneof=adjustment damaged"`
	Remarks string `json:"remarks,omitempty" binding:"max=500"`
}

// StockOutRequest removes an expired batch.
type StockOutRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=500"`
}

// ExpireRequest runs the expiry sweep as of a date (today when absent).
type ExpireRequest struct {
	AsOf *Date `json:"asOf,omitempty"`
}

// QuantityResponse reports a piece quantity affected by an operation.
type QuantityResponse struct {
	Pieces int64 `json:"pieces"`
}

// ExpireResponse reports the batches marked expired.
type ExpireResponse struct {
	Processed int `json:"processed"`
}

// --- Movements ---

// MovementListRequest holds movement query parameters.
type MovementListRequest struct {
	PaginationRequest
	ProductID string     `form:"productId" binding:"omitempty,uuid"`
	BatchID   string     `form:"batchId" binding:"omitempty,uuid"`
	SaleID    string     `form:"saleId" binding:"omitempty,uuid"`
	Reason    string     `form:"reason" binding:"omitempty,oneof=sale expired damaged returned transfer adjustment recall"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts query parameters to a domain filter.
func (r *MovementListRequest) ToFilter() inventory.MovementFilter {
	return inventory.MovementFilter{
		ProductID: optionalID(r.ProductID),
		BatchID:   optionalID(r.BatchID),
		SaleID:    optionalID(r.SaleID),
		Reason:    inventory.Reason(r.Reason),
		From:      r.From,
		To:        r.To,
		Limit:     r.Limit,
		Offset:    r.Offset,
	}
}

// MovementResponse represents a ledger entry.
type MovementResponse struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	BatchID      *string   `json:"batchId,omitempty"`
	FromLocation string    `json:"fromLocation"`
	ToLocation   string    `json:"toLocation"`
	Quantity     int64     `json:"quantity"`
	Reason       string    `json:"reason"`
	Remarks      string    `json:"remarks,omitempty"`
	UserID       string    `json:"userId"`
	SaleID       *string   `json:"saleId,omitempty"`
	LineItemID   *string   `json:"lineItemId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromMovement creates MovementResponse from a domain movement.
func FromMovement(m inventory.Movement) MovementResponse {
	return MovementResponse{
		ID:           m.ID.String(),
		ProductID:    m.ProductID.String(),
		BatchID:      idString(m.BatchID),
		FromLocation: string(m.FromLocation),
		ToLocation:   string(m.ToLocation),
		Quantity:     m.Quantity,
		Reason:       string(m.Reason),
		Remarks:      m.Remarks,
		UserID:       m.UserID,
		SaleID:       idString(m.SaleID),
		LineItemID:   idString(m.LineItemID),
		CreatedAt:    m.CreatedAt,
	}
}

// FromMovements maps a movement listing.
func FromMovements(ms []inventory.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMovement(m))
	}
	return out
}

func optionalID(raw string) *id.ID {
	if raw == "" {
		return nil
	}
	v, err := id.Parse(raw)
	if err != nil {
		return nil
	}
	return &v
}

func idString(v *id.ID) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

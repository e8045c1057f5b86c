// Package inventory implements the batch store, the movement ledger and the
// FIFO dispensing engine with its transfer, recall, expiry and adjustment operators.
package inventory

import (
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/types"
)

// UnitType is the granularity a quantity is expressed in.
type UnitType string

const (
	UnitPiece UnitType = "piece"
	UnitPack  UnitType = "pack"
	UnitBox   UnitType = "box"
)

// Valid reports whether u is one of the known unit types.
func (u UnitType) Valid() bool {
	switch u {
	case UnitPiece, UnitPack, UnitBox:
		return true
	}
	return false
}

// Product is a sellable item with its pack/box configuration.
// SellingPrice is per piece.
type Product struct {
	ID           id.ID       `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	UnitsPerPack int64       `db:"units_per_pack" json:"units_per_pack"`
	PacksPerBox  int64       `db:"packs_per_box" json:"packs_per_box"`
	SellingPrice types.Money `db:"selling_price" json:"selling_price"`
	IsDeleted    bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Validate checks product attributes before creation.
func (p *Product) Validate() error {
	if p.Name == "" {
		return apperror.NewValidation("product name is required")
	}
	if p.UnitsPerPack < 0 || p.PacksPerBox < 0 {
		return apperror.NewValidation("units_per_pack and packs_per_box must not be negative")
	}
	if p.SellingPrice.IsNegative() {
		return apperror.NewValidation("selling_price must not be negative")
	}
	return nil
}

func atLeastOne(v int64) int64 {
	if v <= 0 {
		return 1
	}
	return v
}

// PiecesPerPack is units_per_pack clamped to at least 1.
func (p *Product) PiecesPerPack() int64 {
	return atLeastOne(p.UnitsPerPack)
}

// PiecesPerContainer is packs_per_box x units_per_pack, each clamped to at least 1.
func (p *Product) PiecesPerContainer() int64 {
	return atLeastOne(p.PacksPerBox) * atLeastOne(p.UnitsPerPack)
}

// ToPieces converts a quantity in the given unit to an absolute piece count.
func ToPieces(p *Product, quantity int64, unit UnitType) (int64, error) {
	if quantity < 0 {
		return 0, apperror.NewInvalidQuantity("quantity", quantity)
	}

	switch unit {
	case UnitPiece:
		return quantity, nil
	case UnitPack:
		return quantity * p.PiecesPerPack(), nil
	case UnitBox:
		return quantity * p.PiecesPerContainer(), nil
	default:
		err := apperror.NewInvalidQuantity("unit_type", quantity).WithDetail("unit_type", string(unit))
		err.Message = "unknown unit type"
		return 0, err
	}
}

// StockBreakdown splits a piece count into boxes, packs and loose pieces.
type StockBreakdown struct {
	TotalPieces int64 `json:"total_pieces"`
	Boxes       int64 `json:"boxes"`
	Packs       int64 `json:"packs"`
	Pieces      int64 `json:"pieces"`
}

// Breakdown expresses pieces in the largest units first.
func (p *Product) Breakdown(pieces int64) StockBreakdown {
	perBox := p.PiecesPerContainer()
	perPack := p.PiecesPerPack()

	rest := pieces % perBox
	return StockBreakdown{
		TotalPieces: pieces,
		Boxes:       pieces / perBox,
		Packs:       rest / perPack,
		Pieces:      rest % perPack,
	}
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

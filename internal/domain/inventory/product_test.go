package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmledger/internal/core/apperror"
)

func TestToPieces(t *testing.T) {
	tests := []struct {
		name     string
		product  Product
		quantity int64
		unit     UnitType
		want     int64
	}{
		{"piece", Product{UnitsPerPack: 10, PacksPerBox: 5}, 7, UnitPiece, 7},
		{"pack", Product{UnitsPerPack: 10, PacksPerBox: 5}, 3, UnitPack, 30},
		{"box", Product{UnitsPerPack: 10, PacksPerBox: 5}, 2, UnitBox, 100},
		{"zero config clamps to one", Product{}, 4, UnitBox, 4},
		{"negative packs clamp to one", Product{UnitsPerPack: 12, PacksPerBox: -3}, 2, UnitBox, 24},
		{"zero quantity", Product{UnitsPerPack: 10}, 0, UnitPack, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToPieces(&tt.product, tt.quantity, tt.unit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToPiecesRejectsBadInput(t *testing.T) {
	p := &Product{UnitsPerPack: 10, PacksPerBox: 10}

	_, err := ToPieces(p, -1, UnitPiece)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	_, err = ToPieces(p, 1, UnitType("crate"))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))
}

func TestBreakdown(t *testing.T) {
	p := &Product{UnitsPerPack: 10, PacksPerBox: 10}

	assert.Equal(t, StockBreakdown{TotalPieces: 257, Boxes: 2, Packs: 5, Pieces: 7}, p.Breakdown(257))
	assert.Equal(t, StockBreakdown{}, p.Breakdown(0))
}

func TestProductValidate(t *testing.T) {
	assert.Error(t, (&Product{}).Validate())
	assert.Error(t, (&Product{Name: "Paracetamol", UnitsPerPack: -1}).Validate())
	assert.NoError(t, (&Product{Name: "Paracetamol", UnitsPerPack: 10, PacksPerBox: 10}).Validate())
}

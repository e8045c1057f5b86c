package inventory

import (
	"context"
	"fmt"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/pkg/logger"
)

// Unrestorable is a sale movement whose batch can no longer take stock back.
type Unrestorable struct {
	MovementID id.ID  `json:"movement_id"`
	ProductID  id.ID  `json:"product_id"`
	BatchID    *id.ID `json:"batch_id,omitempty"`
	LineItemID *id.ID `json:"line_item_id,omitempty"`
	Pieces     int64  `json:"pieces"`
	Cause      string `json:"cause"`
}

// Reversal is the outcome of returning a sale's stock.
type Reversal struct {
	PiecesRestored int64          `json:"pieces_restored"`
	Movements      []Movement     `json:"movements"`
	Unrestorable   []Unrestorable `json:"unrestorable,omitempty"`
}

// ReverseSale puts the pieces of every sale movement back onto its batch and
// logs a returned movement for each. Batches that were removed, recalled or
// soft-deleted since the sale cannot be restored and are reported instead.
func (s *Service) ReverseSale(ctx context.Context, saleID id.ID, userID, remarks string) (*Reversal, error) {
	out := &Reversal{}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sold, err := s.repo.ListMovements(ctx, MovementFilter{SaleID: &saleID, Reason: ReasonSale})
		if err != nil {
			return fmt.Errorf("list sale movements: %w", err)
		}
		if len(sold) == 0 {
			return nil
		}

		productIDs := make([]id.ID, 0, len(sold))
		for _, m := range sold {
			productIDs = append(productIDs, m.ProductID)
		}
		products, err := s.LockProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		now := s.now()
		for _, m := range sold {
			skip := func(cause string) {
				out.Unrestorable = append(out.Unrestorable, Unrestorable{
					MovementID: m.ID,
					ProductID:  m.ProductID,
					BatchID:    m.BatchID,
					LineItemID: m.LineItemID,
					Pieces:     m.Quantity,
					Cause:      cause,
				})
			}
			if m.BatchID == nil {
				skip("no batch reference")
				continue
			}

			b, err := s.repo.GetBatch(ctx, *m.BatchID)
			if apperror.IsNotFound(err) {
				skip("batch no longer exists")
				continue
			}
			if err != nil {
				return err
			}
			if !b.IsActive() {
				skip("batch is " + string(b.State))
				continue
			}

			ppc := products[m.ProductID].PiecesPerContainer()
			if _, err := s.setBatchTotal(ctx, b, b.TotalPieces(ppc)+m.Quantity, ppc); err != nil {
				return err
			}

			d := movementDraft{
				productID:  m.ProductID,
				userID:     userID,
				saleID:     m.SaleID,
				lineItemID: m.LineItemID,
				at:         now,
			}
			out.Movements = append(out.Movements, d.record(b, LocationNone, b.Location, m.Quantity, ReasonReturned, remarks))
			out.PiecesRestored += m.Quantity
		}

		return s.record(ctx, out.Movements)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale stock reversed",
		"sale_id", saleID,
		"pieces_restored", out.PiecesRestored,
		"unrestorable", len(out.Unrestorable),
	)
	return out, nil
}

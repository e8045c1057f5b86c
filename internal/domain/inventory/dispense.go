package inventory

import (
	"context"
	"fmt"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/pkg/logger"
)

// DispenseRequest asks for pieces of one product. SaleID and LineItemID,
// when set, are stamped on every movement the dispense writes.
type DispenseRequest struct {
	ProductID  id.ID
	Pieces     int64
	UserID     string
	SaleID     *id.ID
	LineItemID *id.ID
}

// DispenseResult reports what a dispense consumed.
type DispenseResult struct {
	Dispensed int64
	Shortfall int64
	Movements []Movement
}

// Dispense consumes pieces of a product in FIFO order and returns the shortfall.
// A positive shortfall comes with an InsufficientStock error and no stock is touched.
func (s *Service) Dispense(ctx context.Context, productID id.ID, pieces int64, userID string) (int64, error) {
	res, err := s.DispenseForSale(ctx, DispenseRequest{
		ProductID: productID,
		Pieces:    pieces,
		UserID:    userID,
	})
	return res.Shortfall, err
}

// DispenseForSale is Dispense with the movements linked to a sale line.
func (s *Service) DispenseForSale(ctx context.Context, req DispenseRequest) (DispenseResult, error) {
	var res DispenseResult
	if req.Pieces < 0 {
		return res, apperror.NewInvalidQuantity("pieces", req.Pieces)
	}
	if req.Pieces == 0 {
		return res, nil
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.lockLiveProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		batches, err := s.repo.ListActiveBatches(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list batches: %w", err)
		}
		SortFIFO(batches)

		ppc := p.PiecesPerContainer()
		plan := PlanFIFO(batches, ppc, req.Pieces, nil)
		if plan.Shortfall > 0 {
			res.Shortfall = plan.Shortfall
			return apperror.NewInsufficientStock(p.ID.String(), req.Pieces, plan.Shortfall).
				WithDetail("product_name", p.Name)
		}

		d := movementDraft{
			productID:  p.ID,
			userID:     req.UserID,
			saleID:     req.SaleID,
			lineItemID: req.LineItemID,
			at:         s.now(),
		}
		movements := make([]Movement, 0, len(plan.Steps)+1)
		for _, step := range plan.Steps {
			from := step.Batch.Location
			total := step.Batch.TotalPieces(ppc)
			if _, err := s.setBatchTotal(ctx, step.Batch, total-step.Pieces, ppc); err != nil {
				return err
			}
			movements = append(movements, d.record(step.Batch, from, LocationNone, step.Pieces, ReasonSale, ""))
		}

		promoted, err := s.promote(ctx, p, d)
		if err != nil {
			return err
		}
		movements = append(movements, promoted...)
		if err := s.record(ctx, movements); err != nil {
			return err
		}

		res.Dispensed = plan.Taken
		res.Movements = movements
		return nil
	})
	if err != nil {
		return DispenseResult{Shortfall: res.Shortfall}, err
	}

	logger.Info(ctx, "stock dispensed",
		"product_id", req.ProductID,
		"pieces", res.Dispensed,
		"batches", len(res.Movements),
	)
	return res, nil
}

// TransferRequest moves pieces of a product to a destination. Shelf and
// backroom keep the stock in the ledger; any other destination removes it.
type TransferRequest struct {
	ProductID   id.ID
	Pieces      int64
	Destination Location
	UserID      string
	Remarks     string
}

// Transfer moves stock across batches in FIFO order, skipping batches that
// are already at the destination. Whole batches are relocated; a partial
// amount is split off into a new batch with the same dates.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (int64, []Movement, error) {
	if req.Pieces <= 0 {
		return 0, nil, apperror.NewInvalidQuantity("pieces", req.Pieces)
	}
	if req.Destination == LocationNone {
		return 0, nil, apperror.NewValidation("destination is required")
	}

	var (
		shortfall int64
		movements []Movement
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.lockLiveProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		batches, err := s.repo.ListActiveBatches(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list batches: %w", err)
		}
		SortFIFO(batches)

		ppc := p.PiecesPerContainer()
		plan := PlanFIFO(batches, ppc, req.Pieces, func(b *Batch) bool {
			return b.Location == req.Destination
		})
		if plan.Shortfall > 0 {
			shortfall = plan.Shortfall
			return apperror.NewInsufficientStock(p.ID.String(), req.Pieces, plan.Shortfall).
				WithDetail("destination", string(req.Destination))
		}

		d := movementDraft{productID: p.ID, userID: req.UserID, at: s.now()}
		for _, step := range plan.Steps {
			ms, err := s.transferStep(ctx, step, req.Destination, ppc, d, req.Remarks)
			if err != nil {
				return err
			}
			movements = append(movements, ms...)
		}

		if req.Destination != LocationBackroom {
			promoted, err := s.promote(ctx, p, d)
			if err != nil {
				return err
			}
			movements = append(movements, promoted...)
		}
		return s.record(ctx, movements)
	})
	if err != nil {
		return shortfall, nil, err
	}

	logger.Info(ctx, "stock transferred",
		"product_id", req.ProductID,
		"pieces", req.Pieces,
		"destination", req.Destination,
	)
	return 0, movements, nil
}

// transferStep applies one plan step. A split writes two movements: the
// decrement on the source batch and the inbound entry on the new batch, so
// every batch's movements reconcile with its stock.
func (s *Service) transferStep(ctx context.Context, step PlanStep, dest Location, ppc int64, d movementDraft, remarks string) ([]Movement, error) {
	b := step.Batch
	from := b.Location
	total := b.TotalPieces(ppc)

	switch {
	case !dest.Internal():
		if _, err := s.setBatchTotal(ctx, b, total-step.Pieces, ppc); err != nil {
			return nil, err
		}

	case step.Whole:
		b.Location = dest
		b.UpdatedAt = d.at
		if err := s.repo.UpdateBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("relocate batch %s: %w", b.ID, err)
		}

	default:
		if _, err := s.setBatchTotal(ctx, b, total-step.Pieces, ppc); err != nil {
			return nil, err
		}
		split := &Batch{
			ID:           id.New(),
			ProductID:    b.ProductID,
			Location:     dest,
			ReceivedDate: b.ReceivedDate,
			ExpiryDate:   b.ExpiryDate,
			State:        BatchActive,
			CreatedAt:    d.at,
			UpdatedAt:    d.at,
		}
		split.SetTotal(step.Pieces, ppc)
		if err := s.repo.CreateBatch(ctx, split); err != nil {
			return nil, fmt.Errorf("create split batch: %w", err)
		}
		return []Movement{
			d.record(b, from, dest, step.Pieces, ReasonTransfer, remarks),
			d.record(split, from, dest, step.Pieces, ReasonTransfer, "split from batch "+b.ID.String()),
		}, nil
	}

	return []Movement{d.record(b, from, dest, step.Pieces, ReasonTransfer, remarks)}, nil
}

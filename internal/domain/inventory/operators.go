package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/pkg/logger"
)

// RecallRequest withdraws whole containers from a batch.
type RecallRequest struct {
	BatchID    id.ID
	Containers int64
	Reason     string
	UserID     string
}

// Recall removes containers from a batch. A batch left with no stock is
// marked recalled and kept, so the recall stays visible.
func (s *Service) Recall(ctx context.Context, req RecallRequest) (int64, error) {
	if req.Containers <= 0 {
		return 0, apperror.NewInvalidQuantity("containers", req.Containers)
	}

	var recalled int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, p, err := s.lockBatch(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if err := b.ensureActive(); err != nil {
			return err
		}
		if req.Containers > b.FullContainerQuantity {
			return apperror.NewBusinessRule("cannot recall more containers than the batch holds").
				WithDetail("requested", req.Containers).
				WithDetail("available", b.FullContainerQuantity)
		}

		ppc := p.PiecesPerContainer()
		from := b.Location
		recalled = req.Containers * ppc
		remaining := b.TotalPieces(ppc) - recalled

		if remaining <= 0 {
			if err := b.MarkRecalled(); err != nil {
				return err
			}
		} else {
			b.SetTotal(remaining, ppc)
		}
		b.UpdatedAt = s.now()
		if err := s.repo.UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		d := movementDraft{productID: p.ID, userID: req.UserID, at: b.UpdatedAt}
		movements := []Movement{d.record(b, from, LocationNone, recalled, ReasonRecall, req.Reason)}
		promoted, err := s.promote(ctx, p, d)
		if err != nil {
			return err
		}
		return s.record(ctx, append(movements, promoted...))
	})
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "batch recalled",
		"batch_id", req.BatchID,
		"pieces", recalled,
		"reason", req.Reason,
	)
	return recalled, nil
}

// AdjustRequest is a manual correction of one batch.
type AdjustRequest struct {
	BatchID id.ID
	Delta   int64
	// Reason is ReasonAdjustment (default) or ReasonDamaged.
	Reason  Reason
	Remarks string
	UserID  string
}

// Adjust applies a signed piece delta to a batch and returns the delta that
// was actually applied. Removals never take the batch below zero.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (int64, error) {
	if req.Delta == 0 {
		return 0, apperror.NewInvalidQuantity("delta", 0)
	}
	if req.Reason == "" {
		req.Reason = ReasonAdjustment
	}
	switch req.Reason {
	case ReasonAdjustment:
	case ReasonDamaged:
		if req.Delta > 0 {
			return 0, apperror.NewValidation("damaged stock can only be removed").
				WithDetail("delta", req.Delta)
		}
	default:
		return 0, apperror.NewValidation("reason must be adjustment or damaged").
			WithDetail("reason", string(req.Reason))
	}

	var applied int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, p, err := s.lockBatch(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if err := b.ensureActive(); err != nil {
			return err
		}

		ppc := p.PiecesPerContainer()
		total := b.TotalPieces(ppc)
		target := max(total+req.Delta, 0)
		applied = target - total

		loc := b.Location
		removed, err := s.setBatchTotal(ctx, b, target, ppc)
		if err != nil {
			return err
		}

		d := movementDraft{productID: p.ID, userID: req.UserID, at: s.now()}
		var m Movement
		if applied < 0 {
			m = d.record(b, loc, LocationNone, -applied, req.Reason, req.Remarks)
		} else {
			m = d.record(b, LocationNone, loc, applied, req.Reason, req.Remarks)
		}
		movements := []Movement{m}

		if removed {
			promoted, err := s.promote(ctx, p, d)
			if err != nil {
				return err
			}
			movements = append(movements, promoted...)
		}
		return s.record(ctx, movements)
	})
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "batch adjusted",
		"batch_id", req.BatchID,
		"requested", req.Delta,
		"applied", applied,
		"reason", req.Reason,
	)
	return applied, nil
}

// ProcessExpiredBatches writes off every active batch whose expiry date lies
// before asOf's calendar day and returns how many batches were removed.
func (s *Service) ProcessExpiredBatches(ctx context.Context, asOf time.Time, userID string) (int, error) {
	cutoff := StartOfDay(asOf)
	count := 0

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		expired, err := s.repo.ListExpiredBatches(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("list expired batches: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		productIDs := make([]id.ID, 0, len(expired))
		for _, b := range expired {
			productIDs = append(productIDs, b.ProductID)
		}
		products, err := s.LockProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		now := s.now()
		var movements []Movement
		for _, stale := range expired {
			// Re-read under the product lock.
			b, err := s.repo.GetBatch(ctx, stale.ID)
			if apperror.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if !b.IsActive() || !b.ExpiryDate.Before(cutoff) {
				continue
			}

			p := products[b.ProductID]
			total := b.TotalPieces(p.PiecesPerContainer())
			if _, err := s.setBatchTotal(ctx, b, 0, p.PiecesPerContainer()); err != nil {
				return err
			}
			d := movementDraft{productID: p.ID, userID: userID, at: now}
			if total > 0 {
				movements = append(movements, d.record(b, b.Location, LocationNone, total, ReasonExpired,
					"expired "+FormatDate(b.ExpiryDate)))
			}
			count++
		}

		for _, pid := range id.SortedUnique(productIDs) {
			d := movementDraft{productID: pid, userID: userID, at: now}
			promoted, err := s.promote(ctx, products[pid], d)
			if err != nil {
				return err
			}
			movements = append(movements, promoted...)
		}
		return s.record(ctx, movements)
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		logger.Info(ctx, "expired batches processed", "count", count, "cutoff", FormatDate(cutoff))
	}
	return count, nil
}

// StockOutRequest is a manual write-off of an expired or near-expiry batch.
type StockOutRequest struct {
	BatchID id.ID
	Reason  string
	UserID  string
}

// StockOutExpired removes a whole batch that has expired or will expire
// within NearExpiryWindow. Returns the pieces written off.
func (s *Service) StockOutExpired(ctx context.Context, req StockOutRequest) (int64, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return 0, apperror.NewValidation("reason is required")
	}

	var pieces int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, p, err := s.lockBatch(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if err := b.ensureActive(); err != nil {
			return err
		}
		now := s.now()
		if b.ExpiryStatus(now) == ExpiryGood {
			return apperror.NewBusinessRule("batch is not expired or near expiry").
				WithDetail("expiry_date", FormatDate(b.ExpiryDate))
		}

		ppc := p.PiecesPerContainer()
		pieces = b.TotalPieces(ppc)
		from := b.Location
		if _, err := s.setBatchTotal(ctx, b, 0, ppc); err != nil {
			return err
		}

		d := movementDraft{productID: p.ID, userID: req.UserID, at: now}
		movements := []Movement{d.record(b, from, LocationNone, pieces, ReasonExpired, req.Reason)}
		promoted, err := s.promote(ctx, p, d)
		if err != nil {
			return err
		}
		return s.record(ctx, append(movements, promoted...))
	})
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "batch stocked out", "batch_id", req.BatchID, "pieces", pieces)
	return pieces, nil
}

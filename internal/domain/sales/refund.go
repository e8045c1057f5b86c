package sales

import (
	"context"
	"fmt"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/numerator"
	"pharmledger/internal/core/types"
	"pharmledger/pkg/logger"
)

// CreateRefundRequest asks for a full refund of a sale.
type CreateRefundRequest struct {
	SaleID          id.ID
	Reason          RefundReason
	ReasonDetails   string
	PaymentMethod   string
	ReferenceNumber string
	UserID          string
}

// CreateRefund refunds a completed sale in full and returns its stock to the
// ledger. The refund starts pending approval; stock is restored immediately.
func (s *Service) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	if !req.Reason.Valid() {
		return nil, apperror.NewValidation("unknown refund reason").
			WithDetail("reason", string(req.Reason))
	}

	var refund *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.repo.LockSale(ctx, req.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusCompleted {
			return apperror.NewBusinessRule("only completed sales can be refunded").
				WithDetail("status", string(sale.Status))
		}

		existing, err := s.repo.GetRefundBySale(ctx, sale.ID)
		if err == nil {
			return apperror.NewConflict("sale already has a refund").
				WithDetail("refund_id", existing.ID.String())
		}
		if !apperror.IsNotFound(err) {
			return err
		}

		if !sale.FinalAmount.IsPositive() {
			return apperror.NewBusinessRule("sale has nothing to refund").
				WithDetail("final_amount", sale.FinalAmount.StringFixed(types.MoneyPlaces))
		}

		now := s.now()
		cfg := numerator.RefundConfig()
		seq, err := s.numbers.NextValue(ctx, cfg,
			&numerator.Options{Strategy: numerator.StrategyCached}, now)
		if err != nil {
			return fmt.Errorf("allocate refund number: %w", err)
		}
		number := cfg.Format(now, seq)

		reversal, err := s.inventory.ReverseSale(ctx, sale.ID, req.UserID, "refund "+number)
		if err != nil {
			return fmt.Errorf("reverse sale stock: %w", err)
		}

		refund = &Refund{
			ID:              id.New(),
			Number:          number,
			SaleID:          sale.ID,
			AmountRefunded:  sale.FinalAmount,
			Reason:          req.Reason,
			ReasonDetails:   req.ReasonDetails,
			PaymentMethod:   req.PaymentMethod,
			ReferenceNumber: req.ReferenceNumber,
			Status:          RefundPending,
			PiecesRestored:  reversal.PiecesRestored,
			ProcessedBy:     req.UserID,
			CreatedAt:       now,
			Unrestorable:    reversal.Unrestorable,
		}
		if err := s.repo.CreateRefund(ctx, refund); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(refund.Unrestorable) > 0 {
		logger.Warn(ctx, "refund could not restore all stock",
			"refund", refund.Number,
			"unrestorable", len(refund.Unrestorable),
		)
	}
	logger.Info(ctx, "refund created",
		"refund", refund.Number,
		"sale_id", refund.SaleID,
		"amount", refund.AmountRefunded.StringFixed(types.MoneyPlaces),
		"pieces_restored", refund.PiecesRestored,
	)
	return refund, nil
}

// ApproveRefund approves a pending refund.
func (s *Service) ApproveRefund(ctx context.Context, refundID id.ID, approverID string) (*Refund, error) {
	return s.decideRefund(ctx, refundID, approverID, RefundApproved)
}

// RejectRefund rejects a pending refund. Stock already restored stays restored.
func (s *Service) RejectRefund(ctx context.Context, refundID id.ID, approverID string) (*Refund, error) {
	return s.decideRefund(ctx, refundID, approverID, RefundRejected)
}

func (s *Service) decideRefund(ctx context.Context, refundID id.ID, approverID string, status RefundStatus) (*Refund, error) {
	var refund *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if r.Status != RefundPending {
			return apperror.NewBusinessRule("refund has already been decided").
				WithDetail("status", string(r.Status))
		}

		decided := s.now()
		r.Status = status
		r.ApprovedBy = approverID
		r.DecidedAt = &decided
		if err := s.repo.UpdateRefund(ctx, r); err != nil {
			return fmt.Errorf("update refund: %w", err)
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "refund decided", "refund", refund.Number, "status", status, "by", approverID)
	return refund, nil
}

// GetRefund returns a refund by id.
func (s *Service) GetRefund(ctx context.Context, refundID id.ID) (*Refund, error) {
	return s.repo.GetRefund(ctx, refundID)
}

// ListRefunds returns refunds matching the filter, newest first.
func (s *Service) ListRefunds(ctx context.Context, filter RefundFilter) ([]*Refund, error) {
	return s.repo.ListRefunds(ctx, filter)
}

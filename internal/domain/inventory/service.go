package inventory

import (
	"context"
	"fmt"
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/tx"
	"pharmledger/pkg/logger"
)

// Service provides the ledger operations. Every mutating call runs in one
// transaction and joins the caller's transaction when ctx already carries one.
type Service struct {
	repo      Repository
	txManager tx.Manager
	publisher MovementPublisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMovementPublisher forwards recorded movements, e.g. into an outbox.
func WithMovementPublisher(p MovementPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new inventory service.
func NewService(repo Repository, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Products ---

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	logger.Info(ctx, "product created", "product_id", p.ID, "name", p.Name)
	return nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// ListProducts returns products matching the filter.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

// LockProducts row-locks the given products in ascending id order and returns
// them keyed by id. Must be called inside a transaction.
func (s *Service) LockProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]*Product, error) {
	out := make(map[id.ID]*Product, len(productIDs))
	for _, pid := range id.SortedUnique(productIDs) {
		p, err := s.repo.LockProduct(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", pid, err)
		}
		out[pid] = p
	}
	return out, nil
}

func (s *Service) lockLiveProduct(ctx context.Context, productID id.ID) (*Product, error) {
	p, err := s.repo.LockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, apperror.NewBusinessRule("product is deleted").
			WithDetail("product_id", productID.String())
	}
	return p, nil
}

// lockBatch locks the owning product and then reads the batch again so the
// caller works on state no concurrent writer can change.
func (s *Service) lockBatch(ctx context.Context, batchID id.ID) (*Batch, *Product, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.LockProduct(ctx, b.ProductID)
	if err != nil {
		return nil, nil, err
	}
	b, err = s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return b, p, nil
}

// --- Queries ---

// GetBatch returns a batch by id.
func (s *Service) GetBatch(ctx context.Context, batchID id.ID) (*Batch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// ListBatches returns the active batches of a product in dispensing order.
func (s *Service) ListBatches(ctx context.Context, productID id.ID) ([]*Batch, error) {
	batches, err := s.repo.ListActiveBatches(ctx, productID)
	if err != nil {
		return nil, err
	}
	SortFIFO(batches)
	return batches, nil
}

// ListMovements queries the ledger.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// BatchView is a batch annotated for display.
type BatchView struct {
	*Batch
	TotalPieces     int64        `json:"total_pieces"`
	ExpiryStatus    ExpiryStatus `json:"expiry_status"`
	DaysUntilExpiry int          `json:"days_until_expiry"`
}

// StockSummary is the available stock of one product.
type StockSummary struct {
	Product   *Product       `json:"product"`
	Available StockBreakdown `json:"available"`
	Batches   []BatchView    `json:"batches"`
}

// StockSummary returns the product's total stock and its active batches.
func (s *Service) StockSummary(ctx context.Context, productID id.ID) (*StockSummary, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	batches, err := s.ListBatches(ctx, productID)
	if err != nil {
		return nil, err
	}

	ppc := p.PiecesPerContainer()
	now := s.now()
	views := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, BatchView{
			Batch:           b,
			TotalPieces:     b.TotalPieces(ppc),
			ExpiryStatus:    b.ExpiryStatus(now),
			DaysUntilExpiry: b.DaysUntilExpiry(now),
		})
	}

	return &StockSummary{
		Product:   p,
		Available: p.Breakdown(Available(batches, ppc)),
		Batches:   views,
	}, nil
}

// --- Receiving and withdrawal ---

// ReceiveRequest describes incoming stock.
type ReceiveRequest struct {
	ProductID    id.ID
	Containers   int64
	LoosePieces  int64
	Location     Location
	ReceivedDate time.Time
	ExpiryDate   *time.Time
	UserID       string
	Remarks      string
}

// ReceiveBatch creates a batch and logs its arrival.
func (s *Service) ReceiveBatch(ctx context.Context, req ReceiveRequest) (*Batch, error) {
	if req.Containers < 0 {
		return nil, apperror.NewInvalidQuantity("containers", req.Containers)
	}
	if req.LoosePieces < 0 {
		return nil, apperror.NewInvalidQuantity("loose_pieces", req.LoosePieces)
	}
	if req.Containers == 0 && req.LoosePieces == 0 {
		return nil, apperror.NewInvalidQuantity("quantity", 0)
	}
	if req.Location == LocationNone {
		req.Location = LocationShelf
	}
	if !req.Location.Internal() {
		return nil, apperror.NewValidation("batches can only be received into shelf or backroom").
			WithDetail("location", string(req.Location))
	}

	now := s.now()
	received := req.ReceivedDate
	if received.IsZero() {
		received = now
	}
	expiry := received.Add(DefaultShelfLife)
	if req.ExpiryDate != nil {
		expiry = *req.ExpiryDate
	}
	if expiry.Before(received) {
		return nil, apperror.NewValidation("expiry_date must not be before received_date")
	}

	var batch *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.lockLiveProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		ppc := p.PiecesPerContainer()

		batch = &Batch{
			ID:           id.New(),
			ProductID:    p.ID,
			Location:     req.Location,
			ReceivedDate: received,
			ExpiryDate:   expiry,
			State:        BatchActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		total := req.Containers*ppc + req.LoosePieces
		batch.SetTotal(total, ppc)

		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		d := movementDraft{productID: p.ID, userID: req.UserID, at: now}
		return s.record(ctx, []Movement{
			d.record(batch, LocationNone, batch.Location, total, ReasonTransfer, req.Remarks),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch received",
		"batch_id", batch.ID,
		"product_id", batch.ProductID,
		"location", batch.Location,
	)
	return batch, nil
}

// SoftDeleteBatch withdraws an active batch from selection and logs its
// remaining stock as an adjustment out of the system.
func (s *Service) SoftDeleteBatch(ctx context.Context, batchID id.ID, userID string) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, p, err := s.lockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		total := b.TotalPieces(p.PiecesPerContainer())
		from := b.Location
		if err := b.MarkSoftDeleted(); err != nil {
			return err
		}
		b.UpdatedAt = s.now()
		if err := s.repo.UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		d := movementDraft{productID: p.ID, userID: userID, at: b.UpdatedAt}
		movements := []Movement{d.record(b, from, LocationNone, total, ReasonAdjustment, "batch deleted")}
		promoted, err := s.promote(ctx, p, d)
		if err != nil {
			return err
		}
		return s.record(ctx, append(movements, promoted...))
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "batch soft-deleted", "batch_id", batchID)
	return nil
}

// --- Shared primitives ---

// setBatchTotal persists a new piece total, removing the batch when it reaches zero.
// It reports whether the batch was removed.
func (s *Service) setBatchTotal(ctx context.Context, b *Batch, total, ppc int64) (bool, error) {
	if total <= 0 {
		if err := s.repo.DeleteBatch(ctx, b.ID); err != nil {
			return false, fmt.Errorf("delete batch %s: %w", b.ID, err)
		}
		b.SetTotal(0, ppc)
		return true, nil
	}

	b.SetTotal(total, ppc)
	b.UpdatedAt = s.now()
	if err := s.repo.UpdateBatch(ctx, b); err != nil {
		return false, fmt.Errorf("update batch %s: %w", b.ID, err)
	}
	return false, nil
}

// promote moves the oldest backroom batch to the shelf when the product has
// no active shelf stock left.
func (s *Service) promote(ctx context.Context, p *Product, d movementDraft) ([]Movement, error) {
	batches, err := s.repo.ListActiveBatches(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	SortFIFO(batches)

	var candidate *Batch
	for _, b := range batches {
		if b.Location == LocationShelf {
			return nil, nil
		}
		if candidate == nil && b.Location == LocationBackroom {
			candidate = b
		}
	}
	if candidate == nil {
		return nil, nil
	}

	candidate.Location = LocationShelf
	candidate.UpdatedAt = s.now()
	if err := s.repo.UpdateBatch(ctx, candidate); err != nil {
		return nil, fmt.Errorf("promote batch %s: %w", candidate.ID, err)
	}

	logger.Debug(ctx, "batch promoted to shelf", "batch_id", candidate.ID, "product_id", p.ID)

	// Promotion is not part of any sale.
	d.saleID, d.lineItemID = nil, nil
	return []Movement{
		d.record(candidate, LocationBackroom, LocationShelf,
			candidate.TotalPieces(p.PiecesPerContainer()), ReasonTransfer, "auto-promoted to shelf"),
	}, nil
}

// record appends movements to the ledger and hands them to the publisher.
func (s *Service) record(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	for i := range movements {
		if movements[i].Quantity <= 0 {
			return apperror.NewInternal(fmt.Errorf("movement %d has non-positive quantity %d", i, movements[i].Quantity))
		}
	}
	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return fmt.Errorf("create movements: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMovements(ctx, movements); err != nil {
			return fmt.Errorf("publish movements: %w", err)
		}
	}
	return nil
}

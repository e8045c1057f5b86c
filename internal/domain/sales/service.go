package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/core/numerator"
	"pharmledger/internal/core/tx"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/pkg/logger"
)

// Inventory is the part of the ledger that checkout and refunds drive.
type Inventory interface {
	LockProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]*inventory.Product, error)
	DispenseForSale(ctx context.Context, req inventory.DispenseRequest) (inventory.DispenseResult, error)
	ReverseSale(ctx context.Context, saleID id.ID, userID, remarks string) (*inventory.Reversal, error)
}

// Service provides sale and refund operations.
type Service struct {
	repo      Repository
	inventory Inventory
	txManager tx.Manager
	numbers   numerator.Generator
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new sales service.
func NewService(repo Repository, inv Inventory, txManager tx.Manager, numbers numerator.Generator, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		inventory: inv,
		txManager: txManager,
		numbers:   numbers,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckoutLine is one requested product line.
type CheckoutLine struct {
	ProductID id.ID
	Quantity  int64
	UnitType  inventory.UnitType
}

// CheckoutRequest is a complete sale as entered at the till.
type CheckoutRequest struct {
	UserID           string
	CustomerName     string
	PaymentMethod    string
	DiscountPolicyID *id.ID
	CashReceived     types.Money
	Lines            []CheckoutLine
}

func (r *CheckoutRequest) validate() error {
	if len(r.Lines) == 0 {
		return apperror.NewValidation("sale must have at least one line")
	}
	for i, l := range r.Lines {
		if l.Quantity <= 0 {
			return apperror.NewInvalidQuantity("quantity", l.Quantity).WithDetail("line", i+1)
		}
		if !l.UnitType.Valid() {
			return apperror.NewValidation("unknown unit type").
				WithDetail("line", i+1).
				WithDetail("unit_type", string(l.UnitType))
		}
	}
	if r.CashReceived.IsNegative() {
		return apperror.NewValidation("cash_received must not be negative")
	}
	return nil
}

// Checkout creates, dispenses and finalizes a sale in one transaction.
// Any failure, including a stock shortfall on any line, discards the whole sale.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Sale, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var sale *Sale
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var policy *DiscountPolicy
		if req.DiscountPolicyID != nil {
			p, err := s.repo.GetDiscountPolicy(ctx, *req.DiscountPolicyID)
			if err != nil {
				return err
			}
			policy = p
		}

		now := s.now()
		number, err := s.numbers.NextValue(ctx, numerator.InvoiceConfig(),
			&numerator.Options{Strategy: numerator.StrategyStrict}, now)
		if err != nil {
			return fmt.Errorf("allocate sale number: %w", err)
		}

		sale = &Sale{
			ID:               id.New(),
			Number:           number,
			UserID:           req.UserID,
			CustomerName:     req.CustomerName,
			PaymentMethod:    req.PaymentMethod,
			DiscountPolicyID: req.DiscountPolicyID,
			TotalAmount:      types.Zero(),
			DiscountAmount:   types.Zero(),
			FinalAmount:      types.Zero(),
			CashReceived:     types.Zero(),
			ChangeAmount:     types.Zero(),
			Status:           SaleStatusPending,
			CreatedAt:        now,
		}
		if err := s.repo.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		productIDs := make([]id.ID, 0, len(req.Lines))
		for _, l := range req.Lines {
			productIDs = append(productIDs, l.ProductID)
		}
		products, err := s.inventory.LockProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		lines, err := buildLines(sale.ID, req.Lines, products)
		if err != nil {
			return err
		}
		if err := s.repo.CreateLineItems(ctx, lines); err != nil {
			return fmt.Errorf("create line items: %w", err)
		}

		for i := range lines {
			line := &lines[i]
			if _, err := s.inventory.DispenseForSale(ctx, inventory.DispenseRequest{
				ProductID:  line.ProductID,
				Pieces:     line.PiecesDispensed,
				UserID:     req.UserID,
				SaleID:     &sale.ID,
				LineItemID: &line.ID,
			}); err != nil {
				if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInsufficientStock {
					appErr.WithDetail("line", line.LineNo).WithDetail("product_name", line.ProductName)
				}
				return err
			}
		}
		sale.Lines = lines

		ApplyDiscount(sale, policy)
		if req.CashReceived.LessThan(sale.FinalAmount) {
			return apperror.NewInsufficientPayment(sale.FinalAmount.StringFixed(types.MoneyPlaces),
				req.CashReceived.StringFixed(types.MoneyPlaces))
		}
		FinalizePayment(sale, policy, req.CashReceived)

		completed := s.now()
		sale.Status = SaleStatusCompleted
		sale.CompletedAt = &completed
		if err := s.repo.UpdateSale(ctx, sale); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale completed",
		"sale_id", sale.ID,
		"invoice", sale.InvoiceNumber,
		"final_amount", sale.FinalAmount.StringFixed(types.MoneyPlaces),
		"lines", len(sale.Lines),
	)
	return sale, nil
}

func buildLines(saleID id.ID, in []CheckoutLine, products map[id.ID]*inventory.Product) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(in))
	for i, l := range in {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperror.NewNotFound("product", l.ProductID.String())
		}
		if p.IsDeleted {
			return nil, apperror.NewBusinessRule("product is deleted").
				WithDetail("product_id", p.ID.String())
		}
		pieces, err := inventory.ToPieces(p, l.Quantity, l.UnitType)
		if err != nil {
			return nil, err
		}

		price := p.SellingPrice
		lines = append(lines, LineItem{
			ID:              id.New(),
			SaleID:          saleID,
			LineNo:          i + 1,
			ProductID:       p.ID,
			ProductName:     p.Name,
			Quantity:        l.Quantity,
			UnitType:        l.UnitType,
			PiecesDispensed: pieces,
			UnitPrice:       price,
			LineTotal:       types.MulPieces(price, pieces),
		})
	}
	return lines, nil
}

// GetSale returns a sale with its lines.
func (s *Service) GetSale(ctx context.Context, saleID id.ID) (*Sale, error) {
	return s.repo.GetSale(ctx, saleID)
}

// ListSales returns sale headers matching the filter, newest first.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// --- Discount policies ---

// CreateDiscountPolicy stores a new policy.
func (s *Service) CreateDiscountPolicy(ctx context.Context, p *DiscountPolicy) error {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	p.ID = id.New()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.CreateDiscountPolicy(ctx, p); err != nil {
		return fmt.Errorf("create discount policy: %w", err)
	}
	logger.Info(ctx, "discount policy created", "policy_id", p.ID, "rate", p.Rate.String())
	return nil
}

// SetDiscountPolicyActive switches a policy on or off. Completed sales keep
// the rate they were sold with.
func (s *Service) SetDiscountPolicyActive(ctx context.Context, policyID id.ID, active bool) (*DiscountPolicy, error) {
	var policy *DiscountPolicy
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetDiscountPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		p.IsActive = active
		p.UpdatedAt = s.now()
		if err := s.repo.UpdateDiscountPolicy(ctx, p); err != nil {
			return fmt.Errorf("update discount policy: %w", err)
		}
		policy = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "discount policy updated", "policy_id", policyID, "active", active)
	return policy, nil
}

// GetDiscountPolicy returns a policy by id.
func (s *Service) GetDiscountPolicy(ctx context.Context, policyID id.ID) (*DiscountPolicy, error) {
	return s.repo.GetDiscountPolicy(ctx, policyID)
}

// ListDiscountPolicies returns all policies, or only the active ones.
func (s *Service) ListDiscountPolicies(ctx context.Context, activeOnly bool) ([]*DiscountPolicy, error) {
	return s.repo.ListDiscountPolicies(ctx, activeOnly)
}

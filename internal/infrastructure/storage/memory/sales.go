package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/sales"
)

// CreateSale implements sales.Repository.
func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	return s.do(ctx, func(d *state) error {
		for _, existing := range d.sales {
			if existing.Number == sale.Number {
				return apperror.NewConflict("sale number already used").WithDetail("number", sale.Number)
			}
		}
		stored := *sale
		stored.Lines = nil
		d.sales[sale.ID] = stored
		return nil
	})
}

// UpdateSale implements sales.Repository.
func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.sales[sale.ID]; !ok {
			return apperror.NewNotFound("sale", sale.ID.String())
		}
		stored := *sale
		stored.Lines = nil
		d.sales[sale.ID] = stored
		return nil
	})
}

// CreateLineItems implements sales.Repository.
func (s *Store) CreateLineItems(ctx context.Context, lines []sales.LineItem) error {
	return s.do(ctx, func(d *state) error {
		for _, l := range lines {
			if _, ok := d.sales[l.SaleID]; !ok {
				return apperror.NewNotFound("sale", l.SaleID.String())
			}
			d.lines[l.SaleID] = append(slices.Clone(d.lines[l.SaleID]), l)
		}
		return nil
	})
}

// GetSale implements sales.Repository.
func (s *Store) GetSale(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	var out *sales.Sale
	err := s.do(ctx, func(d *state) error {
		sale, ok := d.sales[saleID]
		if !ok {
			return apperror.NewNotFound("sale", saleID.String())
		}
		sale.Lines = slices.Clone(d.lines[saleID])
		out = &sale
		return nil
	})
	return out, err
}

// LockSale implements sales.Repository.
func (s *Store) LockSale(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return s.GetSale(ctx, saleID)
}

// ListSales implements sales.Repository.
func (s *Store) ListSales(ctx context.Context, filter sales.SaleFilter) ([]*sales.Sale, error) {
	var out []*sales.Sale
	err := s.do(ctx, func(d *state) error {
		for _, sale := range d.sales {
			if filter.UserID != "" && sale.UserID != filter.UserID {
				continue
			}
			if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
				continue
			}
			out = append(out, &sale)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *sales.Sale) int {
		return cmp.Compare(b.Number, a.Number)
	})
	return page(out, filter.Limit, filter.Offset), err
}

// CreateDiscountPolicy implements sales.Repository.
func (s *Store) CreateDiscountPolicy(ctx context.Context, p *sales.DiscountPolicy) error {
	return s.do(ctx, func(d *state) error {
		d.policies[p.ID] = *p
		return nil
	})
}

// UpdateDiscountPolicy implements sales.Repository.
func (s *Store) UpdateDiscountPolicy(ctx context.Context, p *sales.DiscountPolicy) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.policies[p.ID]; !ok {
			return apperror.NewNotFound("discount_policy", p.ID.String())
		}
		d.policies[p.ID] = *p
		return nil
	})
}

// GetDiscountPolicy implements sales.Repository.
func (s *Store) GetDiscountPolicy(ctx context.Context, policyID id.ID) (*sales.DiscountPolicy, error) {
	var out *sales.DiscountPolicy
	err := s.do(ctx, func(d *state) error {
		p, ok := d.policies[policyID]
		if !ok {
			return apperror.NewNotFound("discount_policy", policyID.String())
		}
		out = &p
		return nil
	})
	return out, err
}

// ListDiscountPolicies implements sales.Repository.
func (s *Store) ListDiscountPolicies(ctx context.Context, activeOnly bool) ([]*sales.DiscountPolicy, error) {
	var out []*sales.DiscountPolicy
	err := s.do(ctx, func(d *state) error {
		for _, p := range d.policies {
			if activeOnly && !p.IsActive {
				continue
			}
			out = append(out, &p)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *sales.DiscountPolicy) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, err
}

// CreateRefund implements sales.Repository.
func (s *Store) CreateRefund(ctx context.Context, r *sales.Refund) error {
	return s.do(ctx, func(d *state) error {
		for _, existing := range d.refunds {
			if existing.SaleID == r.SaleID {
				return apperror.NewConflict("sale already has a refund")
			}
		}
		stored := *r
		stored.Unrestorable = nil
		d.refunds[r.ID] = stored
		return nil
	})
}

// UpdateRefund implements sales.Repository.
func (s *Store) UpdateRefund(ctx context.Context, r *sales.Refund) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.refunds[r.ID]; !ok {
			return apperror.NewNotFound("refund", r.ID.String())
		}
		stored := *r
		stored.Unrestorable = nil
		d.refunds[r.ID] = stored
		return nil
	})
}

// GetRefund implements sales.Repository.
func (s *Store) GetRefund(ctx context.Context, refundID id.ID) (*sales.Refund, error) {
	var out *sales.Refund
	err := s.do(ctx, func(d *state) error {
		r, ok := d.refunds[refundID]
		if !ok {
			return apperror.NewNotFound("refund", refundID.String())
		}
		out = &r
		return nil
	})
	return out, err
}

// LockRefund implements sales.Repository.
func (s *Store) LockRefund(ctx context.Context, refundID id.ID) (*sales.Refund, error) {
	return s.GetRefund(ctx, refundID)
}

// GetRefundBySale implements sales.Repository.
func (s *Store) GetRefundBySale(ctx context.Context, saleID id.ID) (*sales.Refund, error) {
	var out *sales.Refund
	err := s.do(ctx, func(d *state) error {
		for _, r := range d.refunds {
			if r.SaleID == saleID {
				out = &r
				return nil
			}
		}
		return apperror.NewNotFound("refund", saleID.String())
	})
	return out, err
}

// ListRefunds implements sales.Repository.
func (s *Store) ListRefunds(ctx context.Context, filter sales.RefundFilter) ([]*sales.Refund, error) {
	var out []*sales.Refund
	err := s.do(ctx, func(d *state) error {
		for _, r := range d.refunds {
			if filter.SaleID != nil && r.SaleID != *filter.SaleID {
				continue
			}
			if filter.Status != "" && r.Status != filter.Status {
				continue
			}
			out = append(out, &r)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *sales.Refund) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(b.Number, a.Number))
	})
	return page(out, filter.Limit, filter.Offset), err
}

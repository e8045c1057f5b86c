package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/inventory"
)

// CreateProduct implements inventory.Repository.
func (s *Store) CreateProduct(ctx context.Context, p *inventory.Product) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.products[p.ID]; ok {
			return apperror.NewConflict("product already exists").WithDetail("product_id", p.ID.String())
		}
		d.products[p.ID] = *p
		return nil
	})
}

// GetProduct implements inventory.Repository.
func (s *Store) GetProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	var out *inventory.Product
	err := s.do(ctx, func(d *state) error {
		p, ok := d.products[productID]
		if !ok {
			return apperror.NewNotFound("product", productID.String())
		}
		out = &p
		return nil
	})
	return out, err
}

// LockProduct implements inventory.Repository. The transaction lock already
// excludes every other writer.
func (s *Store) LockProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	return s.GetProduct(ctx, productID)
}

// ListProducts implements inventory.Repository.
func (s *Store) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]*inventory.Product, error) {
	var out []*inventory.Product
	err := s.do(ctx, func(d *state) error {
		search := strings.ToLower(filter.Search)
		for _, p := range d.products {
			if p.IsDeleted && !filter.IncludeDeleted {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
				continue
			}
			out = append(out, &p)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *inventory.Product) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return page(out, filter.Limit, filter.Offset), err
}

// CreateBatch implements inventory.Repository.
func (s *Store) CreateBatch(ctx context.Context, b *inventory.Batch) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.products[b.ProductID]; !ok {
			return apperror.NewNotFound("product", b.ProductID.String())
		}
		b.Version = 1
		d.batches[b.ID] = *b
		return nil
	})
}

// GetBatch implements inventory.Repository.
func (s *Store) GetBatch(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := s.do(ctx, func(d *state) error {
		b, ok := d.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID.String())
		}
		out = &b
		return nil
	})
	return out, err
}

// UpdateBatch implements inventory.Repository.
func (s *Store) UpdateBatch(ctx context.Context, b *inventory.Batch) error {
	return s.do(ctx, func(d *state) error {
		stored, ok := d.batches[b.ID]
		if !ok {
			return apperror.NewNotFound("batch", b.ID.String())
		}
		if stored.Version != b.Version {
			return apperror.NewConcurrentModification("batch", b.ID.String()).
				WithDetail("expected_version", b.Version).
				WithDetail("actual_version", stored.Version)
		}
		b.Version++
		d.batches[b.ID] = *b
		return nil
	})
}

// DeleteBatch implements inventory.Repository.
func (s *Store) DeleteBatch(ctx context.Context, batchID id.ID) error {
	return s.do(ctx, func(d *state) error {
		if _, ok := d.batches[batchID]; !ok {
			return apperror.NewNotFound("batch", batchID.String())
		}
		delete(d.batches, batchID)
		return nil
	})
}

// ListActiveBatches implements inventory.Repository.
func (s *Store) ListActiveBatches(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := s.do(ctx, func(d *state) error {
		for _, b := range d.batches {
			if b.ProductID == productID && b.IsActive() {
				out = append(out, &b)
			}
		}
		return nil
	})
	inventory.SortFIFO(out)
	return out, err
}

// ListExpiredBatches implements inventory.Repository.
func (s *Store) ListExpiredBatches(ctx context.Context, before time.Time) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := s.do(ctx, func(d *state) error {
		for _, b := range d.batches {
			if b.IsActive() && b.ExpiryDate.Before(before) {
				out = append(out, &b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *inventory.Batch) int {
		return cmp.Or(a.ExpiryDate.Compare(b.ExpiryDate), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, err
}

// CreateMovements implements inventory.Repository.
func (s *Store) CreateMovements(ctx context.Context, movements []inventory.Movement) error {
	return s.do(ctx, func(d *state) error {
		d.movements = append(d.movements, movements...)
		return nil
	})
}

// ListMovements implements inventory.Repository. Results are in recording order.
func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	err := s.do(ctx, func(d *state) error {
		for i := range d.movements {
			if filter.Matches(&d.movements[i]) {
				out = append(out, d.movements[i])
			}
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}

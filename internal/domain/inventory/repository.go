package inventory

import (
	"context"
	"time"

	"pharmledger/internal/core/id"
)

// Repository is the persistence contract of the ledger. Implementations read
// and write within the transaction carried by ctx.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ID) (*Product, error)
	// LockProduct reads the product and holds a row lock until the transaction ends.
	LockProduct(ctx context.Context, productID id.ID) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error)

	CreateBatch(ctx context.Context, b *Batch) error
	// GetBatch returns the batch in any state; NotFound once the row is removed.
	GetBatch(ctx context.Context, batchID id.ID) (*Batch, error)
	// UpdateBatch persists b if its Version still matches the stored row, then bumps Version.
	UpdateBatch(ctx context.Context, b *Batch) error
	DeleteBatch(ctx context.Context, batchID id.ID) error
	// ListActiveBatches returns active batches of a product in FIFO order.
	ListActiveBatches(ctx context.Context, productID id.ID) ([]*Batch, error)
	// ListExpiredBatches returns active batches with expiry before the given instant.
	ListExpiredBatches(ctx context.Context, before time.Time) ([]*Batch, error)

	CreateMovements(ctx context.Context, movements []Movement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// MovementPublisher receives every movement written by the service, inside
// the same transaction.
type MovementPublisher interface {
	PublishMovements(ctx context.Context, movements []Movement) error
}

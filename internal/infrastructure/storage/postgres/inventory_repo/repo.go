// Package inventory_repo implements inventory.Repository on PostgreSQL.
// Every method runs on the transaction carried by ctx when there is one.
package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/infrastructure/storage/postgres"
)

const (
	tableProducts  = "products"
	tableBatches   = "batches"
	tableMovements = "stock_movements"
)

var (
	productCols  = postgres.ExtractDBColumns[inventory.Product]()
	batchCols    = postgres.ExtractDBColumns[inventory.Batch]()
	movementCols = postgres.ExtractDBColumns[inventory.Movement]()
)

// fifoOrder sorts shelf before backroom before anything else, then oldest first.
const fifoOrder = "CASE location WHEN 'shelf' THEN 0 WHEN 'backroom' THEN 1 ELSE 2 END, received_date, id"

// Compile-time check.
var _ inventory.Repository = (*Repo)(nil)

// Repo is the PostgreSQL inventory repository.
type Repo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
}

// New creates a new inventory repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager, inserter: postgres.NewBatchInserter(txManager)}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return postgres.Builder()
}

func (r *Repo) exec(ctx context.Context, q squirrel.Sqlizer, entity string, entityID any) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", entity, err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(fmt.Errorf("write %s: %w", entity, err), entity, entityID)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) get(ctx context.Context, dst any, q squirrel.SelectBuilder, entity string, entityID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, entityID.String())
		}
		return postgres.MapError(fmt.Errorf("get %s: %w", entity, err), entity, entityID)
	}
	return nil
}

func (r *Repo) selectAll(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	return nil
}

// --- Products ---

// CreateProduct implements inventory.Repository.
func (r *Repo) CreateProduct(ctx context.Context, p *inventory.Product) error {
	_, err := r.exec(ctx, r.Builder().Insert(tableProducts).SetMap(postgres.StructToMap(p)), "product", p.ID)
	return err
}

// GetProduct implements inventory.Repository.
func (r *Repo) GetProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	var p inventory.Product
	q := r.Builder().Select(productCols...).From(tableProducts).Where(squirrel.Eq{"id": productID})
	if err := r.get(ctx, &p, q, "product", productID); err != nil {
		return nil, err
	}
	return &p, nil
}

// LockProduct implements inventory.Repository. The row lock serializes all
// stock changes of one product.
func (r *Repo) LockProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	var p inventory.Product
	q := r.Builder().Select(productCols...).From(tableProducts).
		Where(squirrel.Eq{"id": productID}).
		Suffix("FOR UPDATE")
	if err := r.get(ctx, &p, q, "product", productID); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts implements inventory.Repository.
func (r *Repo) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]*inventory.Product, error) {
	q := r.Builder().Select(productCols...).From(tableProducts).OrderBy("name", "id")
	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"is_deleted": false})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"name": "%" + filter.Search + "%"})
	}
	q = postgres.Paginate(q, filter.Limit, filter.Offset)

	var out []*inventory.Product
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// --- Batches ---

// CreateBatch implements inventory.Repository.
func (r *Repo) CreateBatch(ctx context.Context, b *inventory.Batch) error {
	b.Version = 1
	_, err := r.exec(ctx, r.Builder().Insert(tableBatches).SetMap(postgres.StructToMap(b)), "batch", b.ID)
	return err
}

// GetBatch implements inventory.Repository.
func (r *Repo) GetBatch(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	var b inventory.Batch
	q := r.Builder().Select(batchCols...).From(tableBatches).Where(squirrel.Eq{"id": batchID})
	if err := r.get(ctx, &b, q, "batch", batchID); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBatch implements inventory.Repository with optimistic locking on version.
func (r *Repo) UpdateBatch(ctx context.Context, b *inventory.Batch) error {
	data := postgres.StructToMap(b)
	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")

	q := r.Builder().Update(tableBatches).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": b.ID}).
		Where(squirrel.Eq{"version": b.Version})

	n, err := r.exec(ctx, q, "batch", b.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := r.GetBatch(ctx, b.ID); getErr != nil {
			return getErr
		}
		return apperror.NewConcurrentModification("batch", b.ID.String()).
			WithDetail("expected_version", b.Version)
	}
	b.Version++
	return nil
}

// DeleteBatch implements inventory.Repository.
func (r *Repo) DeleteBatch(ctx context.Context, batchID id.ID) error {
	n, err := r.exec(ctx, r.Builder().Delete(tableBatches).Where(squirrel.Eq{"id": batchID}), "batch", batchID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("batch", batchID.String())
	}
	return nil
}

// ListActiveBatches implements inventory.Repository.
func (r *Repo) ListActiveBatches(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	if err := r.selectAll(ctx, &out, activeBatchesQuery(productID)); err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	inventory.SortFIFO(out)
	return out, nil
}

// ListExpiredBatches implements inventory.Repository.
func (r *Repo) ListExpiredBatches(ctx context.Context, before time.Time) ([]*inventory.Batch, error) {
	q := r.Builder().Select(batchCols...).From(tableBatches).
		Where(squirrel.Eq{"state": inventory.BatchActive}).
		Where(squirrel.Lt{"expiry_date": before}).
		OrderBy("expiry_date", "id")

	var out []*inventory.Batch
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}
	return out, nil
}

// --- Movements ---

// CreateMovements implements inventory.Repository using COPY.
func (r *Repo) CreateMovements(ctx context.Context, movements []inventory.Movement) error {
	rows := make([][]any, 0, len(movements))
	for i := range movements {
		rows = append(rows, postgres.StructValues(&movements[i], movementCols))
	}
	if _, err := r.inserter.CopyFromSlice(ctx, tableMovements, movementCols, rows); err != nil {
		return postgres.MapError(fmt.Errorf("record movements: %w", err), "stock_movement", "")
	}
	return nil
}

// ListMovements implements inventory.Repository. Results are in recording order.
func (r *Repo) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	if err := r.selectAll(ctx, &out, movementQuery(filter)); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return out, nil
}

func movementQuery(filter inventory.MovementFilter) squirrel.SelectBuilder {
	q := postgres.Builder().Select(movementCols...).From(tableMovements).OrderBy("created_at", "id")
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.BatchID != nil {
		q = q.Where(squirrel.Eq{"batch_id": *filter.BatchID})
	}
	if filter.SaleID != nil {
		q = q.Where(squirrel.Eq{"sale_id": *filter.SaleID})
	}
	if filter.Reason != "" {
		q = q.Where(squirrel.Eq{"reason": filter.Reason})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}
	return postgres.Paginate(q, filter.Limit, filter.Offset)
}

func activeBatchesQuery(productID id.ID) squirrel.SelectBuilder {
	return postgres.Builder().Select(batchCols...).From(tableBatches).
		Where(squirrel.Eq{"product_id": productID, "state": inventory.BatchActive}).
		OrderBy(fifoOrder)
}

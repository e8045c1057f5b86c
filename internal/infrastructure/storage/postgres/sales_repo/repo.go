// Package sales_repo implements sales.Repository on PostgreSQL.
package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/storage/postgres"
)

const (
	tableSales    = "sales"
	tableLines    = "sale_line_items"
	tablePolicies = "discount_policies"
	tableRefunds  = "refunds"
)

var (
	saleCols   = postgres.ExtractDBColumns[sales.Sale]()
	lineCols   = postgres.ExtractDBColumns[sales.LineItem]()
	policyCols = postgres.ExtractDBColumns[sales.DiscountPolicy]()
	refundCols = postgres.ExtractDBColumns[sales.Refund]()
)

// Compile-time check.
var _ sales.Repository = (*Repo)(nil)

// Repo is the PostgreSQL sales repository.
type Repo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
}

// New creates a new sales repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager, inserter: postgres.NewBatchInserter(txManager)}
}

func (r *Repo) exec(ctx context.Context, q squirrel.Sqlizer, entity string, entityID id.ID) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", entity, err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(fmt.Errorf("write %s: %w", entity, err), entity, entityID.String())
	}
	return tag.RowsAffected(), nil
}

// insert writes a new row from the db tags of v.
func (r *Repo) insert(ctx context.Context, table, entity string, entityID id.ID, v any) error {
	_, err := r.exec(ctx, postgres.Builder().Insert(table).SetMap(postgres.StructToMap(v)), entity, entityID)
	return err
}

// update rewrites every column except id; NotFound when the row is missing.
func (r *Repo) update(ctx context.Context, table, entity string, entityID id.ID, v any) error {
	data := postgres.StructToMap(v)
	delete(data, "id")
	n, err := r.exec(ctx, postgres.Builder().Update(table).SetMap(data).Where(squirrel.Eq{"id": entityID}), entity, entityID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound(entity, entityID.String())
	}
	return nil
}

func (r *Repo) get(ctx context.Context, dst any, q squirrel.SelectBuilder, entity, key string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, key)
		}
		return postgres.MapError(fmt.Errorf("get %s: %w", entity, err), entity, key)
	}
	return nil
}

func (r *Repo) selectAll(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

// --- Sales ---

// CreateSale implements sales.Repository.
func (r *Repo) CreateSale(ctx context.Context, sale *sales.Sale) error {
	return r.insert(ctx, tableSales, "sale", sale.ID, sale)
}

// UpdateSale implements sales.Repository.
func (r *Repo) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	return r.update(ctx, tableSales, "sale", sale.ID, sale)
}

// CreateLineItems implements sales.Repository using COPY.
func (r *Repo) CreateLineItems(ctx context.Context, lines []sales.LineItem) error {
	rows := make([][]any, 0, len(lines))
	for i := range lines {
		rows = append(rows, postgres.StructValues(&lines[i], lineCols))
	}
	if _, err := r.inserter.CopyFromSlice(ctx, tableLines, lineCols, rows); err != nil {
		return postgres.MapError(fmt.Errorf("create line items: %w", err), "sale_line_item", "")
	}
	return nil
}

// GetSale implements sales.Repository.
func (r *Repo) GetSale(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return r.getSale(ctx, saleID, false)
}

// LockSale implements sales.Repository.
func (r *Repo) LockSale(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return r.getSale(ctx, saleID, true)
}

func (r *Repo) getSale(ctx context.Context, saleID id.ID, lock bool) (*sales.Sale, error) {
	q := postgres.Builder().Select(saleCols...).From(tableSales).Where(squirrel.Eq{"id": saleID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	var sale sales.Sale
	if err := r.get(ctx, &sale, q, "sale", saleID.String()); err != nil {
		return nil, err
	}

	lq := postgres.Builder().Select(lineCols...).From(tableLines).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("line_no")
	if err := r.selectAll(ctx, &sale.Lines, lq); err != nil {
		return nil, fmt.Errorf("get sale lines: %w", err)
	}
	return &sale, nil
}

// ListSales implements sales.Repository.
func (r *Repo) ListSales(ctx context.Context, filter sales.SaleFilter) ([]*sales.Sale, error) {
	q := postgres.Builder().Select(saleCols...).From(tableSales).OrderBy("number DESC")
	if filter.UserID != "" {
		q = q.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}
	q = postgres.Paginate(q, filter.Limit, filter.Offset)

	var out []*sales.Sale
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return out, nil
}

// --- Discount policies ---

// CreateDiscountPolicy implements sales.Repository.
func (r *Repo) CreateDiscountPolicy(ctx context.Context, p *sales.DiscountPolicy) error {
	return r.insert(ctx, tablePolicies, "discount_policy", p.ID, p)
}

// UpdateDiscountPolicy implements sales.Repository.
func (r *Repo) UpdateDiscountPolicy(ctx context.Context, p *sales.DiscountPolicy) error {
	return r.update(ctx, tablePolicies, "discount_policy", p.ID, p)
}

// GetDiscountPolicy implements sales.Repository.
func (r *Repo) GetDiscountPolicy(ctx context.Context, policyID id.ID) (*sales.DiscountPolicy, error) {
	var p sales.DiscountPolicy
	q := postgres.Builder().Select(policyCols...).From(tablePolicies).Where(squirrel.Eq{"id": policyID})
	if err := r.get(ctx, &p, q, "discount_policy", policyID.String()); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListDiscountPolicies implements sales.Repository.
func (r *Repo) ListDiscountPolicies(ctx context.Context, activeOnly bool) ([]*sales.DiscountPolicy, error) {
	q := postgres.Builder().Select(policyCols...).From(tablePolicies).OrderBy("name", "id")
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	var out []*sales.DiscountPolicy
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list discount policies: %w", err)
	}
	return out, nil
}

// --- Refunds ---

// CreateRefund implements sales.Repository. The unique sale_id constraint
// turns a second refund for the same sale into a Conflict.
func (r *Repo) CreateRefund(ctx context.Context, refund *sales.Refund) error {
	return r.insert(ctx, tableRefunds, "refund", refund.ID, refund)
}

// UpdateRefund implements sales.Repository.
func (r *Repo) UpdateRefund(ctx context.Context, refund *sales.Refund) error {
	return r.update(ctx, tableRefunds, "refund", refund.ID, refund)
}

// GetRefund implements sales.Repository.
func (r *Repo) GetRefund(ctx context.Context, refundID id.ID) (*sales.Refund, error) {
	return r.getRefund(ctx, squirrel.Eq{"id": refundID}, refundID, false)
}

// LockRefund implements sales.Repository.
func (r *Repo) LockRefund(ctx context.Context, refundID id.ID) (*sales.Refund, error) {
	return r.getRefund(ctx, squirrel.Eq{"id": refundID}, refundID, true)
}

// GetRefundBySale implements sales.Repository.
func (r *Repo) GetRefundBySale(ctx context.Context, saleID id.ID) (*sales.Refund, error) {
	return r.getRefund(ctx, squirrel.Eq{"sale_id": saleID}, saleID, false)
}

func (r *Repo) getRefund(ctx context.Context, where squirrel.Eq, key id.ID, lock bool) (*sales.Refund, error) {
	q := postgres.Builder().Select(refundCols...).From(tableRefunds).Where(where)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	var refund sales.Refund
	if err := r.get(ctx, &refund, q, "refund", key.String()); err != nil {
		return nil, err
	}
	return &refund, nil
}

// ListRefunds implements sales.Repository.
func (r *Repo) ListRefunds(ctx context.Context, filter sales.RefundFilter) ([]*sales.Refund, error) {
	q := postgres.Builder().Select(refundCols...).From(tableRefunds).OrderBy("created_at DESC", "number DESC")
	if filter.SaleID != nil {
		q = q.Where(squirrel.Eq{"sale_id": *filter.SaleID})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": filter.Status})
	}
	q = postgres.Paginate(q, filter.Limit, filter.Offset)

	var out []*sales.Refund
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return out, nil
}

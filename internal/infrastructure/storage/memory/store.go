// Package memory provides an in-process implementation of every ledger
// repository. Transactions run one at a time and roll back by restoring a
// snapshot, which gives the same all-or-nothing behaviour as the database.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"pharmledger/internal/core/id"
	"pharmledger/internal/core/tx"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
)

type state struct {
	products  map[id.ID]inventory.Product
	batches   map[id.ID]inventory.Batch
	movements []inventory.Movement

	sales     map[id.ID]sales.Sale
	lines     map[id.ID][]sales.LineItem
	policies  map[id.ID]sales.DiscountPolicy
	refunds   map[id.ID]sales.Refund
	sequences map[string]int64
}

func newState() *state {
	return &state{
		products:  make(map[id.ID]inventory.Product),
		batches:   make(map[id.ID]inventory.Batch),
		sales:     make(map[id.ID]sales.Sale),
		lines:     make(map[id.ID][]sales.LineItem),
		policies:  make(map[id.ID]sales.DiscountPolicy),
		refunds:   make(map[id.ID]sales.Refund),
		sequences: make(map[string]int64),
	}
}

// clone copies the maps; stored values hold no shared mutable parts except
// sale lines, which are never modified after creation.
func (s *state) clone() *state {
	return &state{
		products:  maps.Clone(s.products),
		batches:   maps.Clone(s.batches),
		movements: slices.Clone(s.movements),
		sales:     maps.Clone(s.sales),
		lines:     maps.Clone(s.lines),
		policies:  maps.Clone(s.policies),
		refunds:   maps.Clone(s.refunds),
		sequences: maps.Clone(s.sequences),
	}
}

// Store holds all ledger data in memory.
type Store struct {
	// txMu serializes transactions, which also serializes work per product.
	txMu sync.Mutex
	// mu guards data for single reads and writes.
	mu   sync.Mutex
	data *state
}

var (
	_ tx.Manager           = (*Store)(nil)
	_ inventory.Repository = (*Store)(nil)
	_ sales.Repository     = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

type txKey struct{ store *Store }

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
	}
	defer func() {
		if rec := recover(); rec != nil {
			rollback()
			panic(rec)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		rollback()
		return err
	}
	return nil
}

// do runs fn against the current data. Outside a transaction it waits for
// any running transaction so it never observes uncommitted state.
func (s *Store) do(ctx context.Context, fn func(d *state) error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

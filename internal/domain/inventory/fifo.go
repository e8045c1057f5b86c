package inventory

import (
	"slices"
	"strings"
)

// SortFIFO orders batches for consumption: location precedence, then oldest
// received first, then id so that equal dates resolve the same way every time.
func SortFIFO(batches []*Batch) {
	slices.SortStableFunc(batches, func(a, b *Batch) int {
		if ra, rb := a.Location.rank(), b.Location.rank(); ra != rb {
			return ra - rb
		}
		if c := a.ReceivedDate.Compare(b.ReceivedDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// PlanStep is the amount taken from one batch.
type PlanStep struct {
	Batch  *Batch
	Pieces int64
	// Whole is true when the step takes the batch's entire stock.
	Whole bool
}

// Plan is the result of walking batches in FIFO order.
type Plan struct {
	Steps     []PlanStep
	Taken     int64
	Shortfall int64
}

// PlanFIFO selects need pieces from batches, which must already be in FIFO
// order. Batches rejected by skip are passed over. It does not mutate anything.
func PlanFIFO(batches []*Batch, ppc, need int64, skip func(*Batch) bool) Plan {
	plan := Plan{}
	remaining := need

	for _, b := range batches {
		if remaining <= 0 {
			break
		}
		if !b.IsActive() || (skip != nil && skip(b)) {
			continue
		}
		total := b.TotalPieces(ppc)
		if total <= 0 {
			continue
		}

		take := min(total, remaining)
		plan.Steps = append(plan.Steps, PlanStep{Batch: b, Pieces: take, Whole: take == total})
		plan.Taken += take
		remaining -= take
	}

	plan.Shortfall = max(remaining, 0)
	return plan
}

// Available sums the stock of active batches.
func Available(batches []*Batch, ppc int64) int64 {
	var total int64
	for _, b := range batches {
		if b.IsActive() {
			total += b.TotalPieces(ppc)
		}
	}
	return total
}

// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"fmt"
	"strings"
	"time"
)

// --- Pagination ---

// PaginationRequest contains limit/offset parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// ListResponse wraps list results with the paging that produced them.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse creates a list response, never rendering items as null.
func NewListResponse[T any](items []T, p PaginationRequest) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: p.Limit, Offset: p.Offset}
}

// --- Dates ---

const dateLayout = "2006-01-02"

// Date is a calendar date sent as "YYYY-MM-DD". Full RFC 3339 timestamps are
// accepted as well and truncated to their UTC date.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("date %q: expected YYYY-MM-DD", s)
	}
	u := t.UTC()
	d.Time = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// TimePtr returns nil for an absent date.
func (d *Date) TimePtr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

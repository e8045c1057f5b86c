package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsTimeOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, 7, int(a.Version()))
	assert.Less(t, a.String(), b.String())
}

func TestSortedUnique(t *testing.T) {
	x := MustParse("00000000-0000-7000-8000-000000000002")
	y := MustParse("00000000-0000-7000-8000-000000000001")

	got := SortedUnique([]ID{x, y, x})

	assert.Equal(t, []ID{y, x}, got)
}

package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                    string
		page, size              int
		offset, limit, safePage int
	}{
		{name: "first page", page: 1, size: 10, offset: 0, limit: 10, safePage: 1},
		{name: "third page", page: 3, size: 5, offset: 10, limit: 5, safePage: 3},
		{name: "zero page", page: 0, size: 5, offset: 0, limit: 5, safePage: 1},
		{name: "oversized", page: 2, size: 1000, offset: 10, limit: DefaultPageSize, safePage: 2},
		{name: "huge page", page: math.MaxInt, size: MaxPageSize, offset: (MaxPage - 1) * MaxPageSize, limit: MaxPageSize, safePage: MaxPage},
	}

	for _, tt := range tests {
		offset, limit, page := Calculate(tt.page, tt.size)
		assert.Equal(t, tt.offset, offset, tt.name)
		assert.Equal(t, tt.limit, limit, tt.name)
		assert.Equal(t, tt.safePage, page, tt.name)
	}
}

func TestNewPageMeta(t *testing.T) {
	t.Parallel()

	m := NewPageMeta(2, 10, 25, "tv")
	assert.Equal(t, int64(3), m.TotalPages)
	assert.True(t, m.HasPrevious)
	assert.True(t, m.HasNext)
	assert.Equal(t, "tv", m.Search)

	last := NewPageMeta(3, 10, 25, "")
	assert.False(t, last.HasNext)
}

func TestParseIntDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, ParseIntDefault("4", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
}

func TestCalculateOffsetNeverNegative(t *testing.T) {
	t.Parallel()

	for _, page := range []int{math.MaxInt, math.MaxInt32, MaxPage + 1} {
		offset, _, _ := Calculate(page, MaxPageSize)
		assert.GreaterOrEqual(t, offset, 0)
		assert.LessOrEqual(t, offset, math.MaxInt32)
	}
}

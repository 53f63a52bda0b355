package util

import (
	"math"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage keeps (page-1)*size inside an int32 row offset.
	MaxPage = math.MaxInt32 / MaxPageSize
)

func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// Calculate normalizes page and size and returns the row window.
func Calculate(page, size int) (offset, limit, safePage int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	offset = (page - 1) * size
	return offset, size, page
}

type PageMeta struct {
	PageIndex   int    `json:"page_index"`
	PageSize    int    `json:"page_size"`
	Total       int64  `json:"total"`
	TotalPages  int64  `json:"total_pages"`
	HasPrevious bool   `json:"has_previous"`
	HasNext     bool   `json:"has_next"`
	Search      string `json:"search,omitempty"`
}

func NewPageMeta(page, size int, total int64, search string) PageMeta {
	offset := (page - 1) * size
	return PageMeta{
		PageIndex:   page,
		PageSize:    size,
		Total:       total,
		TotalPages:  (total + int64(size) - 1) / int64(size),
		HasPrevious: page > 1,
		HasNext:     int64(offset+size) < total,
		Search:      search,
	}
}

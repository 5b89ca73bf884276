package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 5
	MaxSize     = 100
	// MaxPage keeps Page*MaxSize within int.
	MaxPage = math.MaxInt / MaxSize
)

// Params holds zero-based page/size pagination parameters extracted from a request.
type Params struct {
	Page int
	Size int
}

// FromContext extracts pagination parameters from the echo context.
// Missing or malformed values fall back to page 0 and DefaultSize.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("size"))
}

// Parse builds Params from raw query values.
func Parse(rawPage, rawSize string) Params {
	page, _ := strconv.Atoi(rawPage)
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}

	size, _ := strconv.Atoi(rawSize)
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	return Params{Page: page, Size: size}
}

// Limit returns the SQL LIMIT for the page.
func (p Params) Limit() int {
	return p.Size
}

// Offset returns the SQL OFFSET for the page.
func (p Params) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// TotalPages returns how many pages of p.Size are needed to hold total items.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// Page is a bounded slice of a result set plus the metadata needed to
// render navigation controls.
type Page[T any] struct {
	Items      []T
	Total      int
	Number     int
	Size       int
	TotalPages int
}

// NewPage wraps items returned for p.
func NewPage[T any](items []T, total int, p Params) *Page[T] {
	return &Page[T]{
		Items:      items,
		Total:      total,
		Number:     p.Page,
		Size:       p.Size,
		TotalPages: p.TotalPages(total),
	}
}

// Numbers lists every page index, for templates that render one link per page.
func (pg *Page[T]) Numbers() []int {
	nums := make([]int, pg.TotalPages)
	for i := range nums {
		nums[i] = i
	}
	return nums
}

// HasNext returns true if there are more pages after the current one.
func (pg *Page[T]) HasNext() bool {
	return pg.Number+1 < pg.TotalPages
}

// HasPrevious returns true if the current page is not the first.
func (pg *Page[T]) HasPrevious() bool {
	return pg.Number > 0
}

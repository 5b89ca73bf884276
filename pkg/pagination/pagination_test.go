package pagination

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Page != 0 {
		t.Errorf("expected default page 0, got %d", p.Page)
	}
	if p.Size != DefaultSize {
		t.Errorf("expected default size %d, got %d", DefaultSize, p.Size)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3&size=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Size != 10 {
		t.Errorf("expected size 10, got %d", p.Size)
	}
	if p.Offset() != 30 {
		t.Errorf("expected offset 30, got %d", p.Offset())
	}
	if p.Limit() != 10 {
		t.Errorf("expected limit 10, got %d", p.Limit())
	}
}

func TestParse_MaxSize(t *testing.T) {
	p := Parse("0", "500")
	if p.Size != MaxSize {
		t.Errorf("expected size capped at %d, got %d", MaxSize, p.Size)
	}
}

func TestParse_InvalidValues(t *testing.T) {
	p := Parse("-2", "abc")
	if p.Page != 0 {
		t.Errorf("expected negative page clamped to 0, got %d", p.Page)
	}
	if p.Size != DefaultSize {
		t.Errorf("expected malformed size to default, got %d", p.Size)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int
		size  int
		want  int
	}{
		{0, 5, 0},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{11, 5, 3},
	}
	for _, tt := range tests {
		p := Params{Size: tt.size}
		if got := p.TotalPages(tt.total); got != tt.want {
			t.Errorf("TotalPages(total=%d,size=%d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestNewPage_Navigation(t *testing.T) {
	pg := NewPage([]string{"a", "b"}, 12, Params{Page: 1, Size: 5})

	if pg.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", pg.TotalPages)
	}
	if !pg.HasNext() {
		t.Error("expected HasNext on middle page")
	}
	if !pg.HasPrevious() {
		t.Error("expected HasPrevious on middle page")
	}

	nums := pg.Numbers()
	if len(nums) != 3 || nums[0] != 0 || nums[2] != 2 {
		t.Errorf("unexpected page numbers: %v", nums)
	}

	last := NewPage([]string{"z"}, 12, Params{Page: 2, Size: 5})
	if last.HasNext() {
		t.Error("expected no next page on the last page")
	}
}

func TestParse_HugePageDoesNotWrap(t *testing.T) {
	for _, raw := range []string{"3689348814741910324", "99999999999999999999999"} {
		p := Parse(raw, "5")
		if p.Page != MaxPage {
			t.Errorf("Parse(%q): expected page capped at %d, got %d", raw, MaxPage, p.Page)
		}
		if p.Offset() < 0 || p.Offset() != MaxPage*5 {
			t.Errorf("Parse(%q): offset wrapped to %d", raw, p.Offset())
		}
	}
}

func TestOffset_Saturates(t *testing.T) {
	p := Params{Page: math.MaxInt / 2, Size: 10}
	if got := p.Offset(); got != math.MaxInt {
		t.Errorf("expected saturated offset, got %d", got)
	}
	if got := (Params{Page: -1, Size: 5}).Offset(); got != 0 {
		t.Errorf("expected offset 0 for negative page, got %d", got)
	}
}

package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))

	if p.Page != DefaultPage {
		t.Errorf("expected default page %d, got %d", DefaultPage, p.Page)
	}
	if p.PerPage != DefaultPerPage {
		t.Errorf("expected default perPage %d, got %d", DefaultPerPage, p.PerPage)
	}
	if p.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset())
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(contextFor("/?page=3&perPage=25"))

	if p.Page != 3 || p.PerPage != 25 {
		t.Errorf("unexpected params %+v", p)
	}
	if p.Limit() != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit())
	}
	if p.Offset() != 50 {
		t.Errorf("expected offset 50, got %d", p.Offset())
	}
}

func TestFromContext_MaxPerPage(t *testing.T) {
	p := FromContext(contextFor("/?perPage=500"))
	if p.PerPage != MaxPerPage {
		t.Errorf("expected perPage capped at %d, got %d", MaxPerPage, p.PerPage)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		page, perPage string
	}{
		{"-1", "-5"},
		{"0", "0"},
		{"abc", "xyz"},
	}
	for _, tt := range tests {
		p := Parse(tt.page, tt.perPage)
		if p.Page != DefaultPage || p.PerPage != DefaultPerPage {
			t.Errorf("Parse(%q, %q) = %+v, want defaults", tt.page, tt.perPage, p)
		}
	}
}

func TestSQL(t *testing.T) {
	p := Params{Page: 3, PerPage: 20}
	expected := "LIMIT 20 OFFSET 40"
	if p.SQL() != expected {
		t.Errorf("expected %q, got %q", expected, p.SQL())
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b", "c"}
	r := NewResponse(data, 10, Params{Page: 1, PerPage: 3})

	if r.Total != 10 {
		t.Errorf("expected total 10, got %d", r.Total)
	}
	if r.TotalPages != 4 {
		t.Errorf("expected 4 pages, got %d", r.TotalPages)
	}
	if !r.HasMore {
		t.Error("expected has_more to be true when more pages remain")
	}

	r2 := NewResponse(data, 3, Params{Page: 1, PerPage: 3})
	if r2.HasMore {
		t.Error("expected has_more to be false on the last page")
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		total  int
		want   bool
	}{
		{"more results", Params{Page: 1, PerPage: 10}, 25, true},
		{"last partial page", Params{Page: 3, PerPage: 10}, 25, false},
		{"past end", Params{Page: 4, PerPage: 10}, 25, false},
		{"no results", Params{Page: 1, PerPage: 10}, 0, false},
		{"exact end", Params{Page: 2, PerPage: 10}, 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.HasNext(tt.total); got != tt.want {
				t.Errorf("HasNext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParams_HasPrevious(t *testing.T) {
	if (Params{Page: 1, PerPage: 10}).HasPrevious() {
		t.Error("first page has no previous page")
	}
	if !(Params{Page: 2, PerPage: 10}).HasPrevious() {
		t.Error("second page has a previous page")
	}
}

func TestParams_TotalPages(t *testing.T) {
	tests := []struct {
		total, perPage, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
	}
	for _, tt := range tests {
		if got := (Params{Page: 1, PerPage: tt.perPage}).TotalPages(tt.total); got != tt.want {
			t.Errorf("TotalPages(%d) with perPage %d = %d, want %d", tt.total, tt.perPage, got, tt.want)
		}
	}
}

package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page    int
	PerPage int
}

// FromContext extracts page and perPage from the query string. Missing or
// invalid values fall back to the defaults; perPage is capped at MaxPerPage.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("perPage"))
}

// Parse normalizes raw page and perPage values.
func Parse(page, perPage string) Params {
	p, _ := strconv.Atoi(page)
	if p <= 0 {
		p = DefaultPage
	}

	n, _ := strconv.Atoi(perPage)
	if n <= 0 {
		n = DefaultPerPage
	}
	if n > MaxPerPage {
		n = MaxPerPage
	}

	return Params{Page: p, PerPage: n}
}

// Limit is the SQL row limit for the page.
func (p Params) Limit() int { return p.PerPage }

// Offset is the number of rows skipped before the page.
func (p Params) Offset() int { return (p.Page - 1) * p.PerPage }

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit(), p.Offset())
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit() < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// TotalPages returns how many pages total rows span.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.PerPage <= 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"perPage"`
	TotalPages int         `json:"totalPages"`
	HasMore    bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: p.TotalPages(total),
		HasMore:    p.HasNext(total),
	}
}

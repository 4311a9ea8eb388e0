package shared

import (
	"math"
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Page selects a window of a listing.
type Page struct {
	Page    int
	PerPage int
}

// NewPage normalises paging input.
func NewPage(page, perPage int) Page {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Page{Page: page, PerPage: perPage}
}

// PageFromRequest reads ?page= and ?per_page= query parameters.
func PageFromRequest(r *http.Request) Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return NewPage(page, perPage)
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination computes pagination metadata.
func NewPagination(p Page, total int) Pagination {
	p = NewPage(p.Page, p.PerPage)
	totalPages := int(math.Ceil(float64(total) / float64(p.PerPage)))
	return Pagination{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Offset()+p.PerPage < total,
		HasPrev:    p.Page > 1,
	}
}

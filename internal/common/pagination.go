package common

import (
	"net/http"
	"strconv"
)

// Page is a page request read from ?page= and ?limit=.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of items preceding the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Meta describes the page within a result set of total items.
func (p Page) Meta(total int) Pagination {
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return Pagination{Page: p.Number, PerPage: p.Size, TotalItems: total, TotalPages: pages}
}

// Pagination is the metadata returned next to list data.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ParsePage reads the page request of r. Missing or invalid values fall back
// to page 1 and defaultSize; sizes above maxSize are capped.
func ParsePage(r *http.Request, defaultSize, maxSize int) Page {
	p := Page{Number: 1, Size: defaultSize}
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Size = n
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

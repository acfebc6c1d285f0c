package render

import (
	"github.com/aukc1970/formwork/internal/content"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Current int
	Total   int
	Prev    int
	Next    int
}

// Paginate filters pages to the published, routable ones carrying tag (when
// not empty) and returns the slice for page number n, counted from 1.
func Paginate(pages []*content.Page, tag string, n, perPage int) ([]*content.Page, Pagination) {
	var items []*content.Page
	for _, p := range pages {
		if !p.Published() || !p.Routable() {
			continue
		}
		if tag != "" && !p.HasTag(tag) {
			continue
		}
		items = append(items, p)
	}

	total := (len(items) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}
	if n < 1 {
		n = 1
	}
	pg := Pagination{Current: n, Total: total}
	if n > 1 {
		pg.Prev = n - 1
	}
	if n < total {
		pg.Next = n + 1
	}

	start := (n - 1) * perPage
	if start >= len(items) {
		return nil, pg
	}
	end := min(start+perPage, len(items))
	return items[start:end], pg
}

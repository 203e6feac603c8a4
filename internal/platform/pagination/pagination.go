// Package pagination slices listings into numbered pages.
package pagination

import "layoutaria/internal/platform/apperr"

// MaxPage is the highest page number a listing accepts.
const MaxPage = 100

// Query selects one page. Zero values take the defaults.
type Query struct {
	Page  int
	Limit int
}

// Page describes the page returned. TotalPages is at least 1.
type Page struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Normalize applies the defaults and checks the bounds.
func Normalize(q Query, defaultLimit, maxLimit int) (Query, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Page < 1 || q.Page > MaxPage {
		return q, apperr.Validationf("page must be between 1 and %d", MaxPage)
	}
	if q.Limit < 1 || q.Limit > maxLimit {
		return q, apperr.Validationf("limit must be between 1 and %d", maxLimit)
	}
	return q, nil
}

// Slice returns the items of page q, never nil. q must be normalized.
func Slice[T any](items []T, q Query) ([]T, Page) {
	total := len(items)
	start := min((q.Page-1)*q.Limit, total)
	end := min(start+q.Limit, total)
	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return out, Page{
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: max(1, (total+q.Limit-1)/q.Limit),
	}
}

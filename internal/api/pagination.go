package api

import (
	"math"
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination extracts page and limit from query params with defaults.
// maxLimit caps the limit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Meta builds pagination metadata for a result set of total rows.
func (p PaginationParams) Meta(total int) PaginationMeta {
	totalPages := int(math.Ceil(float64(total) / float64(p.Limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	return PaginationMeta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    p.Offset+p.Limit < total,
	}
}

package api

import (
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
)

// PageListResponse wraps the page listing.
type PageListResponse struct {
	Pages []models.PageSummary `json:"pages" validate:"required"`
	Total int                  `json:"total" example:"12" validate:"required"`
}

// ConflictsResponse lists ordering-prefix collisions.
type ConflictsResponse struct {
	Conflicts []content.Conflict `json:"conflicts" validate:"required"`
}

// ClearResponse is returned after a cache clear.
type ClearResponse struct {
	Cleared bool `json:"cleared" example:"true" validate:"required"`
}

// InvalidateResponse is returned after a single-route invalidation.
type InvalidateResponse struct {
	Route   string `json:"route" example:"blog" validate:"required"`
	Removed int    `json:"removed" example:"3" validate:"required"`
}

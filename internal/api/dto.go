package api

import (
	"github.com/starford/dms/internal/catalog"
	"github.com/starford/dms/internal/docservice"
	"github.com/starford/dms/internal/models"
)

// DocumentDetail is the single-document response (aliased from the service layer).
type DocumentDetail = docservice.DocumentDetail

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []catalog.Document `json:"documents"`
	Total     int                `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.Hit `json:"results"`
}

// CategoriesResponse wraps per-category counts.
type CategoriesResponse struct {
	Categories []catalog.CategoryCount `json:"categories"`
}

// RunsResponse wraps the rewrite history.
type RunsResponse struct {
	Runs []models.ApplyRun `json:"runs"`
}

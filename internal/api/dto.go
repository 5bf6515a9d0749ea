package api

import (
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/saveservice"
	"github.com/starford/othala/internal/store"
)

// Record is the stored record envelope (aliased from the domain layer).
type Record = models.Record

// SaveRequest is the request body for creating or updating a save
// (aliased from the domain layer).
type SaveRequest = saveservice.SaveInput

// CollectionRequest is the request body for creating or updating a
// collection (aliased from the domain layer).
type CollectionRequest = saveservice.CollectionInput

// AnnotationRequest is the request body for creating an annotation
// (aliased from the domain layer).
type AnnotationRequest = saveservice.AnnotationInput

// ArticleRequest is the request body for creating or updating an
// article (aliased from the domain layer).
type ArticleRequest = saveservice.ArticleInput

// SaveDetail is the full save response with annotations and backlinks
// (aliased from the domain layer).
type SaveDetail = saveservice.SaveDetail

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []*models.Record `json:"records" validate:"required"`
	Total   int              `json:"total" example:"42" validate:"required"`
}

// CollectionListResponse wraps collection listings with member counts.
type CollectionListResponse struct {
	Collections []saveservice.CollectionOverview `json:"collections" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse wraps the slugs of saves referencing a target.
type BacklinksResponse struct {
	Backlinks []string `json:"backlinks" validate:"required"`
}

// UpdateAnnotationRequest edits an annotation's text. The parent save
// binding never changes.
type UpdateAnnotationRequest struct {
	Quote string `json:"quote,omitempty" example:"the quoted passage"`
	Note  string `json:"note,omitempty" example:"my margin note"`
}

// ResolveRequest picks a side for a conflicted record.
type ResolveRequest struct {
	Kind models.Kind `json:"kind" example:"save" validate:"required" enums:"save,collection,annotation,article"`
	Slug string      `json:"slug" example:"my-save" validate:"required"`
	Keep string      `json:"keep" example:"keep-local" validate:"required" enums:"keep-local,keep-remote"`
}

// ConflictListResponse wraps records waiting on resolution.
type ConflictListResponse struct {
	Conflicts []*models.Record `json:"conflicts" validate:"required"`
}

// MediaUploadResponse is returned after a successful media upload.
type MediaUploadResponse struct {
	Name string `json:"name" example:"8f4e1c0a9b2d3f6e.png" validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
	URL  string `json:"url" example:"/media/8f4e1c0a9b2d3f6e.png" validate:"required"`
}

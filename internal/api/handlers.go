package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/saveservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *saveservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *saveservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListSaves handles GET /api/saves.
//
//	@Summary		List saves with optional pagination and filtering
//	@Tags			saves
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			collection	query		string	false	"Filter by collection slug"
//	@Param			status		query		string	false	"Filter by sync status"	Enums(local, syncing, synced, conflict, published)
//	@Param			visibility	query		string	false	"Filter by effective visibility"	Enums(private, shared, unlisted, public)
//	@Success		200			{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/saves [get]
func (h *Handler) ListSaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	recs, total, err := h.svc.ListSaves(r.Context(), saveservice.ListQuery{
		Tag:        q.Get("tag"),
		Collection: q.Get("collection"),
		Status:     models.SyncStatus(q.Get("status")),
		Visibility: models.Visibility(q.Get("visibility")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, "list saves", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"total":   total,
	})
}

// GetSave handles GET /api/saves/{slug}.
//
//	@Summary		Get a save with its annotations and backlinks
//	@Tags			saves
//	@Produce		json
//	@Param			slug	path		string	true	"Save slug"
//	@Success		200		{object}	SaveDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug} [get]
func (h *Handler) GetSave(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetSaveDetail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get save", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateSave handles POST /api/saves.
//
//	@Summary		Create a new save
//	@Tags			saves
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	true	"Save to create"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves [post]
func (h *Handler) CreateSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateSave(r.Context(), req)
	if err != nil {
		writeError(w, "create save", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateSave handles PUT /api/saves/{slug}.
//
//	@Summary		Replace a save's content
//	@Tags			saves
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string		true	"Save slug"
//	@Param			body	body		SaveRequest	true	"Updated content"
//	@Success		200		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug} [put]
func (h *Handler) UpdateSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateSave(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		writeError(w, "update save", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteSave handles DELETE /api/saves/{slug}.
//
//	@Summary		Delete a save and its annotations
//	@Tags			saves
//	@Param			slug	path	string	true	"Save slug"
//	@Success		204		"Save deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug} [delete]
func (h *Handler) DeleteSave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSave(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeError(w, "delete save", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across records
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Backlinks handles GET /api/saves/{slug}/backlinks.
//
//	@Summary		List saves referencing this one
//	@Tags			saves
//	@Produce		json
//	@Param			slug	path		string	true	"Save slug"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	bl, err := h.svc.Backlinks(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backlinks": bl,
	})
}

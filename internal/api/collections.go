package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListCollections handles GET /api/collections.
//
//	@Summary		List collections with member counts
//	@Tags			collections
//	@Produce		json
//	@Success		200	{object}	CollectionListResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.svc.ListCollections(r.Context())
	if err != nil {
		writeError(w, "list collections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collections": cols,
	})
}

// CreateCollection handles POST /api/collections.
//
//	@Summary		Create a new collection
//	@Tags			collections
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CollectionRequest	true	"Collection to create"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections [post]
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateCollection(r.Context(), req)
	if err != nil {
		writeError(w, "create collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetCollection handles GET /api/collections/{slug}.
//
//	@Summary		Get a single collection
//	@Tags			collections
//	@Produce		json
//	@Param			slug	path		string	true	"Collection slug"
//	@Success		200		{object}	Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{slug} [get]
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetCollection(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateCollection handles PUT /api/collections/{slug}.
//
//	@Summary		Replace a collection's content
//	@Tags			collections
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string				true	"Collection slug"
//	@Param			body	body		CollectionRequest	true	"Updated content"
//	@Success		200		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{slug} [put]
func (h *Handler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateCollection(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		writeError(w, "update collection", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteCollection handles DELETE /api/collections/{slug}.
//
//	@Summary		Delete a collection
//	@Tags			collections
//	@Param			slug	path	string	true	"Collection slug"
//	@Success		204		"Collection deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{slug} [delete]
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCollection(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeError(w, "delete collection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToCollection handles PUT /api/collections/{slug}/saves/{save}.
//
//	@Summary		Add a save to a collection
//	@Tags			collections
//	@Produce		json
//	@Param			slug	path		string	true	"Collection slug"
//	@Param			save	path		string	true	"Save slug"
//	@Success		200		{object}	Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{slug}/saves/{save} [put]
func (h *Handler) AddToCollection(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.AddToCollection(r.Context(), chi.URLParam(r, "save"), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "add to collection", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RemoveFromCollection handles DELETE /api/collections/{slug}/saves/{save}.
//
//	@Summary		Remove a save from a collection
//	@Tags			collections
//	@Produce		json
//	@Param			slug	path		string	true	"Collection slug"
//	@Param			save	path		string	true	"Save slug"
//	@Success		200		{object}	Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{slug}/saves/{save} [delete]
func (h *Handler) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.RemoveFromCollection(r.Context(), chi.URLParam(r, "save"), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "remove from collection", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

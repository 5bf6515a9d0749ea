package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListAnnotations handles GET /api/saves/{slug}/annotations.
//
//	@Summary		List the annotations on a save, oldest first
//	@Tags			annotations
//	@Produce		json
//	@Param			slug	path		string	true	"Save slug"
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug}/annotations [get]
func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	anns, err := h.svc.AnnotationsFor(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "list annotations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": anns,
		"total":   len(anns),
	})
}

// CreateAnnotation handles POST /api/annotations.
//
//	@Summary		Annotate an existing save
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotationRequest	true	"Annotation to create"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [post]
func (h *Handler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req AnnotationRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateAnnotation(r.Context(), req)
	if err != nil {
		writeError(w, "create annotation", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateAnnotation handles PUT /api/annotations/{slug}.
//
//	@Summary		Edit an annotation's quote and note
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string					true	"Annotation slug"
//	@Param			body	body		UpdateAnnotationRequest	true	"Updated text"
//	@Success		200		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{slug} [put]
func (h *Handler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req UpdateAnnotationRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateAnnotation(r.Context(), chi.URLParam(r, "slug"), req.Quote, req.Note)
	if err != nil {
		writeError(w, "update annotation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteAnnotation handles DELETE /api/annotations/{slug}.
//
//	@Summary		Delete an annotation
//	@Tags			annotations
//	@Param			slug	path	string	true	"Annotation slug"
//	@Success		204		"Annotation deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{slug} [delete]
func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAnnotation(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeError(w, "delete annotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

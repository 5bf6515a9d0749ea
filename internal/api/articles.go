package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListArticles handles GET /api/articles.
//
//	@Summary		List articles, newest first
//	@Tags			articles
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/articles [get]
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	recs, total, err := h.svc.ListArticles(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list articles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"total":   total,
	})
}

// CreateArticle handles POST /api/articles.
//
//	@Summary		Create a new article draft
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ArticleRequest	true	"Article to create"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles [post]
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req ArticleRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateArticle(r.Context(), req)
	if err != nil {
		writeError(w, "create article", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetArticle handles GET /api/articles/{slug}.
//
//	@Summary		Get a single article
//	@Tags			articles
//	@Produce		json
//	@Param			slug	path		string	true	"Article slug"
//	@Success		200		{object}	Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{slug} [get]
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetArticle(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get article", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateArticle handles PUT /api/articles/{slug}.
//
//	@Summary		Replace an article's content
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string			true	"Article slug"
//	@Param			body	body		ArticleRequest	true	"Updated content"
//	@Success		200		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{slug} [put]
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	var req ArticleRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateArticle(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		writeError(w, "update article", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteArticle handles DELETE /api/articles/{slug}.
//
//	@Summary		Delete an article
//	@Tags			articles
//	@Param			slug	path	string	true	"Article slug"
//	@Success		204		"Article deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{slug} [delete]
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteArticle(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeError(w, "delete article", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

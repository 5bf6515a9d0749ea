package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/models"
)

// GetSettings handles GET /api/settings.
//
//	@Summary		Get the persisted sync settings
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	models.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		writeError(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/settings.
//
//	@Summary		Replace the sync settings
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Settings	true	"New settings"
//	@Success		200		{object}	models.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	if !decode(w, r, &req) {
		return
	}
	settings, err := h.svc.UpdateSettings(r.Context(), req)
	if err != nil {
		writeError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SyncNow handles POST /api/sync.
//
//	@Summary		Run a full sync cycle and wait for its report
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncer.SyncReport
//	@Failure		400	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SyncNow(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SyncStatus handles GET /api/sync/status.
//
//	@Summary		Report sync settings and live engine state
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	saveservice.SyncOverview
//	@Security		BearerAuth
//	@Router			/sync/status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.GetSyncOverview(r.Context())
	if err != nil {
		writeError(w, "sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Conflicts handles GET /api/sync/conflicts.
//
//	@Summary		List records waiting on conflict resolution
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ConflictListResponse
//	@Security		BearerAuth
//	@Router			/sync/conflicts [get]
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Conflicts(r.Context())
	if err != nil {
		writeError(w, "list conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": recs,
	})
}

// Resolve handles POST /api/sync/resolve.
//
//	@Summary		Settle a conflicted record by keeping one side
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResolveRequest	true	"Resolution choice"
//	@Success		200		{object}	Record
//	@Success		204		"Remote deletion adopted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Kind.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown record kind"))
		return
	}
	rec, err := h.svc.Resolve(r.Context(), req.Kind, req.Slug, req.Keep)
	if err != nil {
		writeError(w, "resolve conflict", err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Publish returns a handler that lists a record of the given kind
// publicly. Mounted per resource so slugs stay in the path.
//
//	@Summary		Publish a record for public discovery
//	@Tags			sync
//	@Produce		json
//	@Param			slug	path		string	true	"Record slug"
//	@Success		200		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves/{slug}/publish [post]
func (h *Handler) Publish(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.svc.PublishRecord(r.Context(), kind, chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, "publish", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

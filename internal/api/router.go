package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/media"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/saveservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// mediaStore, if non-nil, mounts upload at POST /media.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *saveservice.Service, mediaStore *media.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Saves CRUD.
	r.Get("/saves", h.ListSaves)
	r.Post("/saves", h.CreateSave)
	r.Get("/saves/{slug}", h.GetSave)
	r.Put("/saves/{slug}", h.UpdateSave)
	r.Delete("/saves/{slug}", h.DeleteSave)
	r.Get("/saves/{slug}/annotations", h.ListAnnotations)
	r.Get("/saves/{slug}/backlinks", h.Backlinks)
	r.Post("/saves/{slug}/publish", h.Publish(models.KindSave))

	// Collections and membership.
	r.Get("/collections", h.ListCollections)
	r.Post("/collections", h.CreateCollection)
	r.Get("/collections/{slug}", h.GetCollection)
	r.Put("/collections/{slug}", h.UpdateCollection)
	r.Delete("/collections/{slug}", h.DeleteCollection)
	r.Put("/collections/{slug}/saves/{save}", h.AddToCollection)
	r.Delete("/collections/{slug}/saves/{save}", h.RemoveFromCollection)
	r.Post("/collections/{slug}/publish", h.Publish(models.KindCollection))

	// Annotations.
	r.Post("/annotations", h.CreateAnnotation)
	r.Put("/annotations/{slug}", h.UpdateAnnotation)
	r.Delete("/annotations/{slug}", h.DeleteAnnotation)

	// Articles.
	r.Get("/articles", h.ListArticles)
	r.Post("/articles", h.CreateArticle)
	r.Get("/articles/{slug}", h.GetArticle)
	r.Put("/articles/{slug}", h.UpdateArticle)
	r.Delete("/articles/{slug}", h.DeleteArticle)
	r.Post("/articles/{slug}/publish", h.Publish(models.KindArticle))

	// Search.
	r.Get("/search", h.Search)

	// Settings and sync.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Post("/sync", h.SyncNow)
	r.Get("/sync/status", h.SyncStatus)
	r.Get("/sync/conflicts", h.Conflicts)
	r.Post("/sync/resolve", h.Resolve)

	// Media upload (auth-protected). Blobs are served at the server root
	// because save bodies reference them by absolute /media/ path.
	if mediaStore != nil {
		r.Post("/media", NewMediaHandler(mediaStore).Upload)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

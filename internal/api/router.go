package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all admin routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Content tree.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)
	r.Get("/conflicts", h.Conflicts)

	// Route resolution.
	r.Get("/resolve", h.Resolve)

	// Response cache.
	r.Post("/cache/clear", h.ClearCache)
	r.Delete("/cache", h.InvalidateRoute)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

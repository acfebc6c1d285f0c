package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
)

// Service is the engine surface used by the admin API.
type Service interface {
	Pages() ([]models.PageSummary, error)
	Detail(route string) (models.PageDetail, error)
	Conflicts() ([]content.Conflict, error)
	ResolvePath(ctx context.Context, path string) (models.ResolveOutcome, error)
	ClearCache() error
	InvalidateRoute(route string) (int, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// pageRoute extracts the page route from the URL (everything after /pages/).
// Supports encoded slashes (e.g. blog%2Ffirst).
func pageRoute(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return strings.Trim(decoded, "/")
}

// ListPages handles GET /pages.
//
//	@Summary		List every page of the content tree
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, _ *http.Request) {
	pages, err := h.svc.Pages()
	if err != nil {
		slog.Error("list pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages, Total: len(pages)})
}

// GetPage handles GET /pages/*.
//
//	@Summary		Get a single page by route
//	@Tags			pages
//	@Produce		json
//	@Param			route	path		string	true	"Page route"
//	@Success		200		{object}	models.PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{route} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("route is required"))
		return
	}
	d, err := h.svc.Detail(route)
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Conflicts handles GET /conflicts.
//
//	@Summary		List ordering-prefix collisions
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	ConflictsResponse
//	@Security		BearerAuth
//	@Router			/conflicts [get]
func (h *Handler) Conflicts(w http.ResponseWriter, _ *http.Request) {
	cs, err := h.svc.Conflicts()
	if err != nil {
		writeError(w, "conflicts", err)
		return
	}
	if cs == nil {
		cs = []content.Conflict{}
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: cs})
}

// Resolve handles GET /resolve?path=.
//
//	@Summary		Resolve a request path without rendering it
//	@Tags			routing
//	@Produce		json
//	@Param			path	query		string	true	"Request path"
//	@Success		200		{object}	models.ResolveOutcome
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	out, err := h.svc.ResolvePath(r.Context(), p)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ClearCache handles POST /cache/clear.
//
//	@Summary		Drop every cached response
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	ClearResponse
//	@Security		BearerAuth
//	@Router			/cache/clear [post]
func (h *Handler) ClearCache(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.ClearCache(); err != nil {
		writeError(w, "clear cache", err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Cleared: true})
}

// InvalidateRoute handles DELETE /cache?route=.
//
//	@Summary		Drop the cached responses of one route
//	@Tags			cache
//	@Produce		json
//	@Param			route	query		string	true	"Page route"
//	@Success		200		{object}	InvalidateResponse
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) InvalidateRoute(w http.ResponseWriter, r *http.Request) {
	route := strings.Trim(r.URL.Query().Get("route"), "/")
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("route is required"))
		return
	}
	n, err := h.svc.InvalidateRoute(route)
	if err != nil {
		writeError(w, "invalidate route", err)
		return
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Route: route, Removed: n})
}

func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

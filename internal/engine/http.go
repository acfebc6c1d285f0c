package engine

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/checksum"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/resolve"
	"github.com/aukc1970/formwork/internal/router"
)

// ServeHTTP runs the full pipeline for one request.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := e.Resolve(ctx, router.RequestFrom(r))
	if err != nil {
		e.fail(w, r, err)
		return
	}

	switch res.Kind {
	case resolve.KindRedirect:
		http.Redirect(w, r, res.Location, res.Status)
	case resolve.KindFile:
		e.serveFile(w, r, res.File)
	default:
		resp, hit, err := e.Render(ctx, res)
		if err != nil {
			e.fail(w, r, err)
			return
		}
		e.write(w, r, resp, hit)
	}
}

func (e *Engine) write(w http.ResponseWriter, r *http.Request, resp *models.Response, hit bool) {
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	if e.cache != nil {
		if hit {
			h.Set("X-Cache", "HIT")
		} else {
			h.Set("X-Cache", "MISS")
		}
	}
	if resp.Status == http.StatusOK && checksum.MatchETag(r.Header.Get("If-None-Match"), h.Get("ETag")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

func (e *Engine) serveFile(w http.ResponseWriter, r *http.Request, f *content.File) {
	rs, err := e.store.Open(f.Path)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	defer rs.Close()
	w.Header().Set("Content-Type", f.MimeType)
	http.ServeContent(w, r, f.Name, f.ModTime, rs)
}

func (e *Engine) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	e.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	http.Error(w, http.StatusText(status), status)
}

// statusFor maps pipeline errors to HTTP status codes. Configuration and
// storage faults are server errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

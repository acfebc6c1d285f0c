package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/engine"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/testutil"
)

// testEnv builds an engine over the blog fixture with an in-memory cache and
// returns it together with the admin router. An empty token disables auth.
func testEnv(t *testing.T, authToken string) (*engine.Engine, http.Handler) {
	t.Helper()
	_, store := testutil.Store(t, testutil.Blog())

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mem, err := cache.NewMemoryStore(32)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := cache.NewSiteCache(mem, nil, cache.Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(store, engine.WithCache(sc), engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e, NewRouter(e, authToken != "", authToken, nil)
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListPages(t *testing.T) {
	_, router := testEnv(t, "")

	w := serve(router, http.MethodGet, "/pages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[PageListResponse](t, w)
	if resp.Total != len(resp.Pages) || resp.Total == 0 {
		t.Fatalf("total = %d, pages = %d", resp.Total, len(resp.Pages))
	}
	routes := make(map[string]bool)
	for _, p := range resp.Pages {
		routes[p.Route] = true
	}
	for _, want := range []string{"about", "blog", "blog/first", "index", "404"} {
		if !routes[want] {
			t.Errorf("route %q missing from %v", want, routes)
		}
	}
	if routes["empty"] {
		t.Error("empty directory listed as a page")
	}
}

func TestGetPage(t *testing.T) {
	_, router := testEnv(t, "")

	w := serve(router, http.MethodGet, "/pages/about", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decode[models.PageDetail](t, w)
	if d.Title != "About" {
		t.Errorf("title = %q", d.Title)
	}
	var names []string
	for _, f := range d.Files {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "photo.png" {
		t.Errorf("files = %v, want only allowed extensions", names)
	}
}

func TestGetPage_NestedEncoded(t *testing.T) {
	_, router := testEnv(t, "")

	w := serve(router, http.MethodGet, "/pages/blog%2Ffirst", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decode[models.PageDetail](t, w)
	if d.Route != "blog/first" {
		t.Errorf("route = %q", d.Route)
	}
	if len(d.Tags) != 1 || d.Tags[0] != "go" {
		t.Errorf("tags = %v", d.Tags)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := serve(router, http.MethodGet, "/pages/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestResolve(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		path, kind, route, location string
	}{
		{"/", "page", "index", ""},
		{"/blog/page/2/", "page", "blog", ""},
		{"/old-page/", "redirect", "", "/new-page/"},
		{"/about/photo.png", "file", "", ""},
		{"/missing/", "error", "404", ""},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			w := serve(router, http.MethodGet, "/resolve?path="+tc.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			out := decode[models.ResolveOutcome](t, w)
			if out.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", out.Kind, tc.kind)
			}
			if tc.route != "" && out.Route != tc.route {
				t.Errorf("route = %q, want %q", out.Route, tc.route)
			}
			if tc.location != "" && out.Location != tc.location {
				t.Errorf("location = %q, want %q", out.Location, tc.location)
			}
		})
	}
}

func TestResolve_MissingPath(t *testing.T) {
	_, router := testEnv(t, "")
	if w := serve(router, http.MethodGet, "/resolve", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCacheClearAndInvalidate(t *testing.T) {
	e, router := testEnv(t, "")

	for _, p := range []string{"/blog/", "/blog/page/2/", "/about/"} {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("warm %s: status = %d", p, w.Code)
		}
	}

	w := serve(router, http.MethodDelete, "/cache?route=/blog/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	inv := decode[InvalidateResponse](t, w)
	if inv.Route != "blog" || inv.Removed != 2 {
		t.Errorf("invalidate = %+v, want blog/2", inv)
	}

	keys, err := e.Cache().Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys after invalidate = %v", keys)
	}

	w = serve(router, http.MethodPost, "/cache/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !decode[ClearResponse](t, w).Cleared {
		t.Error("cleared = false")
	}
	if keys, _ := e.Cache().Keys(); len(keys) != 0 {
		t.Errorf("keys after clear = %v", keys)
	}
}

func TestInvalidate_MissingRoute(t *testing.T) {
	_, router := testEnv(t, "")
	if w := serve(router, http.MethodDelete, "/cache", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestConflicts(t *testing.T) {
	_, router := testEnv(t, "")
	w := serve(router, http.MethodGet, "/conflicts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[ConflictsResponse](t, w); len(got.Conflicts) != 0 {
		t.Errorf("conflicts = %v", got.Conflicts)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret")

	if w := serve(router, http.MethodGet, "/pages", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	bad := http.Header{"Authorization": {"Bearer wrong"}}
	if w := serve(router, http.MethodGet, "/pages", bad); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", w.Code)
	}
	good := http.Header{"Authorization": {"Bearer secret"}}
	if w := serve(router, http.MethodGet, "/pages", good); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := serve(router, http.MethodPost, "/cache/clear", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

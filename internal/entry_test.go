package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aukc1970/formwork/internal/testutil"
)

func testConfig(t *testing.T, files map[string]string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Content.Path = testutil.ContentDir(t, files)
	cfg.Content.SiteFile = filepath.Join(t.TempDir(), "site.yml")
	cfg.Templates.Path = ""
	cfg.Cache.Enabled = true
	cfg.Cache.Driver = CacheDriverMemory
	return cfg
}

func testRuntime(t *testing.T, cfg *Config) *runtime {
	t.Helper()
	rt, err := setup(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func get(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetup_RequiresConfig(t *testing.T) {
	if _, err := setup(WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestHandler_Routes(t *testing.T) {
	rt := testRuntime(t, testConfig(t, testutil.Blog()))
	h := rt.Handler()

	if w := get(h, "/health/live", nil); w.Code != http.StatusOK {
		t.Errorf("live: status = %d", w.Code)
	}

	w := get(h, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Welcome") {
		t.Errorf("index: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Cache") != "MISS" {
		t.Errorf("X-Cache = %q", w.Header().Get("X-Cache"))
	}

	if w := get(h, "/admin/api/pages", nil); w.Code != http.StatusOK {
		t.Errorf("admin pages: status = %d", w.Code)
	}

	w = get(h, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "formwork_resolutions_total") {
		t.Errorf("metrics: status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := get(h, "/missing/", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d", w.Code)
	}
}

func TestHandler_AdminAuthAndDisable(t *testing.T) {
	cfg := testConfig(t, testutil.Blog())
	cfg.Admin.Root = "/panel/"
	cfg.Admin.Auth = AuthConfig{Mode: AuthModeToken, Token: "t0k"}
	h := testRuntime(t, cfg).Handler()

	if w := get(h, "/panel/api/pages", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	if w := get(h, "/panel/api/pages", http.Header{"Authorization": {"Bearer t0k"}}); w.Code != http.StatusOK {
		t.Errorf("token: status = %d", w.Code)
	}

	cfg = testConfig(t, testutil.Blog())
	cfg.Admin.Enabled = false
	h = testRuntime(t, cfg).Handler()
	if w := get(h, "/admin/api/pages", nil); w.Code != http.StatusNotFound {
		t.Errorf("disabled admin: status = %d", w.Code)
	}
}

func TestSetup_SiteFile(t *testing.T) {
	cfg := testConfig(t, testutil.Blog())
	site := "title: Field Notes\naliases:\n  legacy: about\n"
	if err := os.WriteFile(cfg.Content.SiteFile, []byte(site), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := testRuntime(t, cfg)

	if got := rt.engine.Site().Title(); got != "Field Notes" {
		t.Errorf("title = %q", got)
	}
	out, err := rt.engine.ResolvePath(context.Background(), "/legacy/")
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != "page" || out.Route != "about" {
		t.Errorf("alias outcome = %+v", out)
	}
}

func TestCheck_ReportsConflicts(t *testing.T) {
	files := testutil.Blog()
	files["04-about/page.md"] = "---\ntitle: Duplicate\n---\n"
	cfg := testConfig(t, files)

	conflicts, err := Check(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 || conflicts[0].Component != "about" {
		t.Fatalf("conflicts = %v", conflicts)
	}
}

func TestClearCache_SQLite(t *testing.T) {
	cfg := testConfig(t, testutil.Blog())
	cfg.Cache.Driver = CacheDriverSQLite
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	rt := testRuntime(t, cfg)
	if w := get(rt.Handler(), "/about/", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if keys, _ := rt.cache.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
	rt.Close()

	if err := ClearCache(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	rt = testRuntime(t, cfg)
	if keys, _ := rt.cache.Keys(); len(keys) != 0 {
		t.Errorf("keys after clear = %v", keys)
	}
}

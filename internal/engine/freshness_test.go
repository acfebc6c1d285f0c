package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/render"
	"github.com/aukc1970/formwork/internal/router"
	"github.com/aukc1970/formwork/internal/testutil"
)

const editedAbout = "---\ntitle: About\n---\nEDITED BODY"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type cachedEnv struct {
	dir    string
	engine *Engine
	cache  *cache.SiteCache
	clock  *testClock
}

// newCachedEnv builds an engine whose cache checks the blog tree every
// second of fake time. A zero every disables the checks.
func newCachedEnv(t *testing.T, r render.Renderer, every time.Duration) cachedEnv {
	t.Helper()
	dir, store := testutil.Store(t, testutil.Blog())
	clk := &testClock{t: time.Now().Add(time.Hour)}

	mem, err := cache.NewMemoryStore(64)
	if err != nil {
		t.Fatal(err)
	}
	tree := cache.TreeFunc(func(since time.Time) (bool, error) {
		return store.ModifiedSince("", since)
	})
	sc, err := cache.NewSiteCache(mem, tree, cache.Options{
		CheckInterval: every,
		Now:           clk.now,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	opts := []Option{WithCache(sc), WithLogger(quietLogger())}
	if r != nil {
		opts = append(opts, WithRenderer(r))
	}
	e, err := New(store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return cachedEnv{dir: dir, engine: e, cache: sc, clock: clk}
}

func (env cachedEnv) editAbout(t *testing.T, mtime time.Time) {
	t.Helper()
	p := filepath.Join(env.dir, "01-about", "page.md")
	if err := os.WriteFile(p, []byte(editedAbout), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestServe_TreeCheckReloadsEditedPage(t *testing.T) {
	env := newCachedEnv(t, nil, time.Second)
	start := env.clock.now()

	first := do(t, env.engine, http.MethodGet, "/about/", nil)
	if got := first.Header.Get("X-Cache"); got != "MISS" {
		t.Fatalf("first X-Cache = %q", got)
	}
	if b := body(t, first); !strings.Contains(b, "About us") {
		t.Fatalf("first body = %s", b)
	}
	if got := do(t, env.engine, http.MethodGet, "/about/", nil).Header.Get("X-Cache"); got != "HIT" {
		t.Fatalf("second X-Cache = %q", got)
	}

	env.editAbout(t, start.Add(time.Minute))
	env.clock.advance(time.Hour)

	edited := do(t, env.engine, http.MethodGet, "/about/", nil)
	if got := edited.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache after edit = %q, want MISS", got)
	}
	b := body(t, edited)
	if !strings.Contains(b, "EDITED BODY") || strings.Contains(b, "About us") {
		t.Errorf("body after edit = %s", b)
	}

	again := do(t, env.engine, http.MethodGet, "/about/", nil)
	if got := again.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache after re-render = %q, want HIT", got)
	}
	if !strings.Contains(body(t, again), "EDITED BODY") {
		t.Error("edited page not cached")
	}
}

func TestServe_RenderDuringContentChangeIsNotCached(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	next := render.NewTemplates("", "", 0)
	gate := render.RendererFunc(func(ctx context.Context, v *render.View) (*models.Response, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return next.Render(ctx, v)
	})
	env := newCachedEnv(t, gate, 0)

	done := make(chan string)
	go func() {
		rec := httptest.NewRecorder()
		env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about/", nil))
		done <- rec.Body.String()
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("render did not start")
	}
	env.editAbout(t, time.Time{})
	env.engine.contentChanged("01-about/page.md")
	close(release)

	select {
	case b := <-done:
		if !strings.Contains(b, "About us") {
			t.Errorf("in-flight body = %s", b)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("render did not finish")
	}

	if keys, _ := env.cache.Keys(); len(keys) != 0 {
		t.Fatalf("render from the old tree was cached: %v", keys)
	}
	resp := do(t, env.engine, http.MethodGet, "/about/", nil)
	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	if b := body(t, resp); !strings.Contains(b, "EDITED BODY") {
		t.Errorf("body = %s", b)
	}
}

func TestRender_ResultFromReplacedTreeIsNotCached(t *testing.T) {
	env := newCachedEnv(t, nil, 0)
	ctx := context.Background()

	res, err := env.engine.Resolve(ctx, router.Request{Path: "/about/", Method: http.MethodGet, Transport: router.TransportHTTP})
	if err != nil {
		t.Fatal(err)
	}
	env.editAbout(t, time.Time{})
	env.engine.contentChanged("01-about/page.md")

	if _, hit, err := env.engine.Render(ctx, res); err != nil || hit {
		t.Fatalf("Render = hit %v, err %v", hit, err)
	}
	if keys, _ := env.cache.Keys(); len(keys) != 0 {
		t.Fatalf("page from the replaced tree was cached: %v", keys)
	}

	resp := do(t, env.engine, http.MethodGet, "/about/", nil)
	if b := body(t, resp); !strings.Contains(b, "EDITED BODY") {
		t.Errorf("body = %s", b)
	}
	if keys, _ := env.cache.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v, want the fresh render", keys)
	}
}

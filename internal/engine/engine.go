// Package engine bundles the content tree, router, resolver, response cache
// and renderer into one request pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/checksum"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/metrics"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/render"
	"github.com/aukc1970/formwork/internal/resolve"
	"github.com/aukc1970/formwork/internal/router"
	"github.com/aukc1970/formwork/internal/storage"
)

const tracerName = "github.com/aukc1970/formwork/internal/engine"

// Event kinds passed to the notifier.
const (
	EventCacheCleared   = "cache.cleared"
	EventContentChanged = "content.changed"
)

// Notifier receives engine events.
type Notifier func(kind string, data map[string]string)

type routeDef struct {
	transports []router.Transport
	methods    []string
	patterns   []string
	handler    router.Handler[*resolve.Result]
}

// Engine resolves and renders requests. It is safe for concurrent use.
type Engine struct {
	store       storage.Provider
	contentOpts content.Options
	siteData    map[string]any
	renderer    render.Renderer
	cache       *cache.SiteCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	notify      Notifier
	group       singleflight.Group

	mu       sync.RWMutex
	site     *content.Site
	resolver *resolve.Resolver
	router   *router.Router[*resolve.Result]
	extra    []routeDef
}

// Option configures an Engine.
type Option func(*Engine)

// WithContentOptions sets the content tree options.
func WithContentOptions(o content.Options) Option {
	return func(e *Engine) { e.contentOpts = o }
}

// WithSiteData sets site-level data such as the title and aliases.
func WithSiteData(data map[string]any) Option {
	return func(e *Engine) { e.siteData = data }
}

// WithRenderer sets the page renderer.
func WithRenderer(r render.Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithCache enables the response cache.
func WithCache(c *cache.SiteCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics enables Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithNotifier sets the event callback.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

// New builds an Engine over store.
func New(store storage.Provider, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:       store,
		contentOpts: content.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.renderer == nil {
		e.renderer = render.NewTemplates("", "", 0)
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.OnStale(func() {
			if err := e.Reload(); err != nil {
				e.logger.Error("engine: reload failed", slog.String("error", err.Error()))
			}
		})
	}
	return e, nil
}

// Reload rebuilds the content tree so edits on disk become visible. Cached
// responses are left to the cache's own staleness checks.
func (e *Engine) Reload() error {
	site, err := content.NewSite(e.store, e.siteData, e.contentOpts)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	res := resolve.New(site, e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	rt, err := e.buildRouter(res)
	if err != nil {
		return err
	}
	e.site, e.resolver, e.router = site, res, rt

	if r, ok := e.renderer.(interface{ Reset() }); ok {
		r.Reset()
	}
	e.metrics.Reloaded()
	return nil
}

func (e *Engine) buildRouter(res *resolve.Resolver) (*router.Router[*resolve.Result], error) {
	rt := router.New[*resolve.Result]()
	for _, d := range e.extra {
		if err := rt.Add(d.transports, d.methods, d.patterns, d.handler); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	if err := resolve.Register(rt, res); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return rt, nil
}

// Handle registers a route that takes precedence over the default page
// routes.
func (e *Engine) Handle(transports []router.Transport, methods []string, patterns []string, h router.Handler[*resolve.Result]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	extra := append(e.extra, routeDef{transports: transports, methods: methods, patterns: patterns, handler: h})
	saved := e.extra
	e.extra = extra
	rt, err := e.buildRouter(e.resolver)
	if err != nil {
		e.extra = saved
		return err
	}
	e.router = rt
	return nil
}

func (e *Engine) snapshot() (*content.Site, *resolve.Resolver, *router.Router[*resolve.Result]) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.site, e.resolver, e.router
}

// Site returns the current content tree.
func (e *Engine) Site() *content.Site {
	site, _, _ := e.snapshot()
	return site
}

// Resolver returns the resolver for the current content tree.
func (e *Engine) Resolver() *resolve.Resolver {
	_, res, _ := e.snapshot()
	return res
}

// Cache returns the response cache, or nil when caching is disabled.
func (e *Engine) Cache() *cache.SiteCache {
	return e.cache
}

// Resolve dispatches req and applies the routing policy. A request that no
// route matches resolves to the error page.
func (e *Engine) Resolve(ctx context.Context, req router.Request) (*resolve.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.resolve", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	))
	defer span.End()

	// A due tree check may reload the site; it has to run before the
	// snapshot so the request resolves against fresh pages.
	if e.cache != nil {
		e.cache.Refresh()
	}

	_, res, rt := e.snapshot()
	out, m, err := rt.Dispatch(ctx, req)
	if errors.Is(err, router.ErrNoMatch) {
		out, err = res.NotFound(ctx, req.Path)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if m != nil && m.Pattern != nil {
		span.SetAttributes(attribute.String("route.pattern", m.Pattern.String()))
	}
	span.SetAttributes(attribute.String("resolve.kind", out.Kind.String()))
	e.metrics.Resolved(out.Kind.String())
	return out, nil
}

// ResolvePath resolves a GET for p without rendering it.
func (e *Engine) ResolvePath(ctx context.Context, p string) (models.ResolveOutcome, error) {
	res, err := e.Resolve(ctx, router.Request{Path: p, Method: http.MethodGet, Transport: router.TransportHTTP})
	if err != nil {
		return models.ResolveOutcome{}, err
	}
	return res.Outcome(p), nil
}

// Render returns the response for a page or error result, replaying it
// from the cache when possible. hit reports whether the cache served it.
func (e *Engine) Render(ctx context.Context, res *resolve.Result) (resp *models.Response, hit bool, err error) {
	cacheable := e.cache != nil && res.Page != nil && res.Page.Cacheable()
	key := ""
	if res.Page != nil {
		key = cache.Key(res.Page.Route(), res.Params.Map())
	}

	if cacheable {
		if resp, ok := e.cache.Fetch(key); ok {
			e.metrics.CacheHit()
			return resp, true, nil
		}
		e.metrics.CacheMiss()
	}

	do := func() (any, error) {
		ctx, span := e.tracer.Start(ctx, "engine.render", trace.WithAttributes(
			attribute.String("page.route", key),
		))
		defer span.End()

		var gen uint64
		if cacheable {
			gen = e.cache.Generation()
		}
		start := time.Now()
		site, _, _ := e.snapshot()
		out, err := e.renderer.Render(ctx, &render.View{
			Site:   site,
			Page:   res.Page,
			Params: res.Params,
			Status: res.Status,
		})
		e.metrics.Rendered(time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if out.Header == nil {
			out.Header = make(http.Header)
		}
		out.Header.Set("ETag", checksum.ETag(out.Body))
		// A page from a replaced tree is served but never stored.
		if cacheable && res.Page.Site() == site {
			if !e.cache.SaveAt(key, out, gen) {
				e.logger.DebugContext(ctx, "engine: render outdated by cache clear", slog.String("key", key))
			}
		}
		return out, nil
	}

	if key == "" {
		v, err := do()
		if err != nil {
			return nil, false, err
		}
		return v.(*models.Response), false, nil
	}
	v, err, _ := e.group.Do(key, do)
	if err != nil {
		return nil, false, err
	}
	return v.(*models.Response).Clone(), false, nil
}

// ClearCache drops every cached response.
func (e *Engine) ClearCache() error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.Clear(); err != nil {
		return fmt.Errorf("engine: clear cache: %w", err)
	}
	e.metrics.CacheCleared()
	e.emit(EventCacheCleared, map[string]string{})
	return nil
}

// InvalidateRoute drops the cached responses of one route.
func (e *Engine) InvalidateRoute(route string) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	n, err := e.cache.Invalidate(route)
	if err != nil {
		return n, fmt.Errorf("engine: invalidate %q: %w", route, err)
	}
	e.emit(EventCacheCleared, map[string]string{"route": cache.Key(route, nil)})
	return n, nil
}

// Watch reloads the tree and clears the cache on content changes until ctx
// is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	return cache.Watch(ctx, e.store.Root(), nil, e.logger, func(_, path string) {
		e.contentChanged(path)
	})
}

// contentChanged reloads the tree, then clears the cache, then notifies.
// Renders that started on the previous tree are refused by the cache.
func (e *Engine) contentChanged(path string) {
	if err := e.Reload(); err != nil {
		e.logger.Error("engine: reload failed", slog.String("error", err.Error()))
		return
	}
	if e.cache != nil {
		if err := e.cache.Clear(); err != nil {
			e.logger.Warn("engine: cache clear failed", slog.String("error", err.Error()))
		} else {
			e.metrics.CacheCleared()
		}
	}
	e.emit(EventContentChanged, map[string]string{"path": path})
}

func (e *Engine) emit(kind string, data map[string]string) {
	if e.notify != nil {
		e.notify(kind, data)
	}
}

// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/aukc1970/formwork/internal/api"
	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/engine"
	"github.com/aukc1970/formwork/internal/mcpserver"
	"github.com/aukc1970/formwork/internal/metrics"
	"github.com/aukc1970/formwork/internal/render"
	"github.com/aukc1970/formwork/internal/sse"
	"github.com/aukc1970/formwork/internal/storage"
	pkgconfig "github.com/aukc1970/formwork/pkg/config"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	engine  *engine.Engine
	cache   *cache.SiteCache
	metrics *metrics.Metrics
	broker  *sse.Broker
	version string
}

func (rt *runtime) Close() {
	rt.broker.Close()
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("cache close failed", slog.String("error", err.Error()))
		}
	}
}

func setup(opts ...Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	siteData := map[string]any{}
	if cfg.Content.SiteFile != "" {
		found, err := pkgconfig.LoadOptional(cfg.Content.SiteFile, &siteData)
		if err != nil {
			return nil, fmt.Errorf("load site data: %w", err)
		}
		if !found {
			logger.Debug("site file not found", slog.String("path", cfg.Content.SiteFile))
		}
	}

	// The tree check reads the store directly so it stays valid across
	// engine reloads.
	tree := cache.TreeFunc(func(since time.Time) (bool, error) {
		return store.ModifiedSince("", since)
	})
	siteCache, err := cfg.Cache.Open(tree, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	m := metrics.New()
	broker := sse.NewBroker(2 * time.Second)

	engineOpts := []engine.Option{
		engine.WithContentOptions(cfg.Content.Options()),
		engine.WithSiteData(siteData),
		engine.WithRenderer(render.NewTemplates(cfg.Templates.Path, cfg.Templates.Extension, cfg.Templates.PerPage)),
		engine.WithMetrics(m),
		engine.WithLogger(logger),
		engine.WithTracer(otel.Tracer("github.com/aukc1970/formwork")),
		engine.WithNotifier(broker.Notify),
	}
	if siteCache != nil {
		engineOpts = append(engineOpts, engine.WithCache(siteCache))
	}

	eng, err := engine.New(store, engineOpts...)
	if err != nil {
		broker.Close()
		if siteCache != nil {
			siteCache.Close()
		}
		return nil, fmt.Errorf("init engine: %w", err)
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		engine:  eng,
		cache:   siteCache,
		metrics: m,
		broker:  broker,
		version: app.version,
	}, nil
}

func logConflicts(logger *slog.Logger, conflicts []content.Conflict) {
	for _, c := range conflicts {
		logger.Warn("route conflict",
			slog.String("dir", c.Dir),
			slog.String("component", c.Component),
			slog.Any("names", c.Names))
	}
}

// Handler builds the HTTP handler: health checks, metrics, the admin API and
// the engine as catch-all.
func (rt *runtime) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", rt.metrics.Handler())

	if admin := rt.cfg.Admin; admin.Enabled {
		r.Mount(admin.Mount()+"/api", api.NewRouter(rt.engine, admin.Auth.AuthEnabled(), admin.Auth.Token, rt.broker))
	}

	r.Handle("/*", rt.engine)
	return r
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	if conflicts, err := rt.engine.Conflicts(); err != nil {
		logger.Warn("conflict check failed", slog.String("error", err.Error()))
	} else {
		logConflicts(logger, conflicts)
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: rt.Handler(),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch content: reload the tree, clear the cache and notify SSE clients.
	if cfg.Cache.Watch {
		g.Go(func() error {
			if err := rt.engine.Watch(gCtx); err != nil {
				logger.Error("content watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// Check validates the content tree and returns its ordering-prefix conflicts.
func Check(_ context.Context, opts ...Option) ([]content.Conflict, error) {
	rt, err := setup(opts...)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	conflicts, err := rt.engine.Conflicts()
	if err != nil {
		return nil, fmt.Errorf("check content: %w", err)
	}
	return conflicts, nil
}

// ClearCache drops every stored response. It only matters for persistent
// drivers; the memory store starts empty anyway.
func ClearCache(_ context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cache == nil {
		rt.logger.Info("cache disabled, nothing to clear")
		return nil
	}
	if err := rt.engine.ClearCache(); err != nil {
		return err
	}
	rt.logger.Info("cache cleared")
	return nil
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	return mcpserver.New(rt.engine, rt.version).ServeStdio()
}

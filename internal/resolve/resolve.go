// Package resolve turns a router match into a page, a page file, a redirect
// or the error page.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/router"
)

// Route parameter names used by the default routes.
const (
	ParamPage       = "page"
	ParamTag        = "tagName"
	ParamPagination = "paginationPage"
)

// DefaultMaxAliasHops bounds alias chains.
const DefaultMaxAliasHops = 8

// Kind is the resolution outcome.
type Kind int

const (
	KindPage Kind = iota
	KindFile
	KindRedirect
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindFile:
		return "file"
	case KindRedirect:
		return "redirect"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the outcome of resolving one request.
type Result struct {
	Kind Kind
	// Page is the resolved page, or the error page for KindError. It is nil
	// for KindError when the site has no error page.
	Page *content.Page
	// File is set for KindFile.
	File *content.File
	// Location is the redirect target for KindRedirect.
	Location string
	// Status is the HTTP status to respond with.
	Status int
	// Route is the page route looked up after alias substitution.
	Route  string
	Params router.Params
}

// Outcome summarizes r for the admin API and tools.
func (r *Result) Outcome(requestPath string) models.ResolveOutcome {
	out := models.ResolveOutcome{
		Path:     requestPath,
		Kind:     r.Kind.String(),
		Location: r.Location,
		Params:   r.Params.Map(),
	}
	if r.Page != nil {
		out.Route = r.Page.Route()
	}
	if r.File != nil {
		out.File = r.File.Path
		out.MimeType = r.File.MimeType
	}
	return out
}

// Resolver applies the routing policy to a content tree.
type Resolver struct {
	site    *content.Site
	logger  *slog.Logger
	maxHops int
}

// New creates a Resolver over site.
func New(site *content.Site, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{site: site, logger: logger, maxHops: DefaultMaxAliasHops}
}

// Handler adapts the resolver to a router handler.
func (r *Resolver) Handler() router.Handler[*Result] {
	return router.HandlerFunc[*Result](r.Resolve)
}

// Resolve applies aliases, canonical redirects, listing gates and
// publication checks to m. Errors are configuration or storage faults; a
// missing page is reported as KindError.
func (r *Resolver) Resolve(ctx context.Context, m *router.Match) (*Result, error) {
	index := strings.Trim(r.site.Options().IndexRoute, "/")
	route := strings.Trim(m.Params.Get(ParamPage, index), "/")

	route, err := r.unalias(route)
	if err != nil {
		return nil, err
	}

	page, err := r.site.FindPage(route)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	if page == nil {
		file, err := r.fileFallback(route, index)
		if err != nil {
			return nil, err
		}
		if file != nil {
			return &Result{Kind: KindFile, File: file, Status: http.StatusOK, Route: route, Params: m.Params}, nil
		}
		return r.errorResult(ctx, route, m.Params)
	}

	if canonical, ok := page.Canonical(); ok && m.Params.Get(ParamPage, "") != canonical {
		location := canonicalLocation(m, canonical)
		if strings.Trim(location, "/") != strings.Trim(path.Clean("/"+m.Path), "/") {
			return &Result{
				Kind:     KindRedirect,
				Page:     page,
				Location: location,
				Status:   http.StatusMovedPermanently,
				Route:    route,
				Params:   m.Params,
			}, nil
		}
	}

	if (m.Params.Has(ParamTag) || m.Params.Has(ParamPagination)) && !page.Listing() {
		return r.errorResult(ctx, route, m.Params)
	}

	if page.Routable() && page.Published() {
		return &Result{Kind: KindPage, Page: page, Status: page.ResponseStatus(), Route: route, Params: m.Params}, nil
	}
	return r.errorResult(ctx, route, m.Params)
}

func (r *Resolver) unalias(route string) (string, error) {
	for hops := 0; ; hops++ {
		to, ok := r.site.Alias(route)
		if !ok {
			return route, nil
		}
		if hops >= r.maxHops {
			return "", fmt.Errorf("resolve: alias %q: %w", route, apperr.ErrAliasLoop)
		}
		route = to
	}
}

// canonicalLocation rewrites the matched pattern so tag and pagination
// suffixes survive the redirect.
func canonicalLocation(m *router.Match, canonical string) string {
	if canonical == "" {
		return "/"
	}
	if m.Pattern != nil && m.Params.Has(ParamPage) {
		if loc, err := m.Rewrite(map[string]string{ParamPage: canonical}); err == nil {
			return loc
		}
	}
	return "/" + canonical + "/"
}

// fileFallback treats the last route component as a file name owned by the
// page at the remaining prefix. Top-level files belong to the index page.
func (r *Resolver) fileFallback(route, index string) (*content.File, error) {
	if route == "" {
		return nil, nil
	}
	name := path.Base(route)
	upper := path.Dir(route)
	if upper == "." {
		upper = index
	}
	parent, err := r.site.FindPage(upper)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if parent == nil {
		return nil, nil
	}
	file, err := parent.File(name)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	return file, nil
}

// NotFound returns the error page result for a request no route matched.
func (r *Resolver) NotFound(ctx context.Context, requestPath string) (*Result, error) {
	return r.errorResult(ctx, strings.Trim(requestPath, "/"), router.Params{})
}

func (r *Resolver) errorResult(ctx context.Context, route string, params router.Params) (*Result, error) {
	page, err := r.site.ErrorPage()
	if err != nil {
		return nil, fmt.Errorf("resolve: error page: %w", err)
	}
	status := http.StatusNotFound
	if page == nil {
		r.logger.WarnContext(ctx, "error page missing",
			slog.String("error_route", r.site.Options().ErrorRoute),
			slog.String("route", route),
		)
	} else {
		status = page.ResponseStatus()
	}
	return &Result{Kind: KindError, Page: page, Status: status, Route: route, Params: params}, nil
}

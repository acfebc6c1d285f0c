// Package router implements the declarative pattern router that maps request
// paths to handlers.
//
// Routes are tried in registration order and, within a route, patterns are
// tried in the order they were listed. The first pattern that matches wins;
// there is no specificity ranking. Before any pattern is tried a route must
// accept the request's transport kind and method, otherwise it is skipped.
//
//	r := router.New[string]()
//	r.MustAdd(nil, nil, []string{"/{page}/page/{paginationPage:num}/", "/{page}/"}, handler)
//
// Placeholder types:
//
//	{name}      any single segment
//	{name:num}  digits only
//	{name:aln}  ASCII letters and digits only
//	{name:all}  one or more segments, slashes included
package router

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/aukc1970/formwork/internal/apperr"
)

// Transport distinguishes plain browser requests from script-initiated ones.
type Transport string

const (
	TransportHTTP Transport = "HTTP"
	TransportXHR  Transport = "XHR"
)

// ErrNoMatch is returned by Dispatch when no registered route matches.
var ErrNoMatch = fmt.Errorf("router: no matching route: %w", apperr.ErrNotFound)

// Request is the subset of an incoming request the router dispatches on.
type Request struct {
	Path      string
	Method    string
	Transport Transport
}

// RequestFrom derives a Request from an HTTP request.
func RequestFrom(r *http.Request) Request {
	return Request{
		Path:      r.URL.Path,
		Method:    r.Method,
		Transport: TransportOf(r),
	}
}

// TransportOf reports XHR for requests carrying X-Requested-With: XMLHttpRequest.
func TransportOf(r *http.Request) Transport {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return TransportXHR
	}
	return TransportHTTP
}

// Handler produces a resource for a matched route.
type Handler[T any] interface {
	Handle(ctx context.Context, m *Match) (T, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, m *Match) (T, error)

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, m *Match) (T, error) {
	return f(ctx, m)
}

type staticHandler[T any] struct {
	v T
}

func (s staticHandler[T]) Handle(context.Context, *Match) (T, error) {
	return s.v, nil
}

// Static returns a Handler that always yields v.
func Static[T any](v T) Handler[T] {
	return staticHandler[T]{v: v}
}

// Match describes a successful dispatch.
type Match struct {
	Path    string
	Pattern *Pattern
	Params  Params
}

// Rewrite renders the matched pattern with some parameters replaced.
func (m *Match) Rewrite(overrides map[string]string) (string, error) {
	values := m.Params.Map()
	for k, v := range overrides {
		values[k] = v
	}
	return m.Pattern.Build(values)
}

type route[T any] struct {
	transports []Transport
	methods    []string
	patterns   []*Pattern
	handler    Handler[T]
}

func (r *route[T]) accepts(req Request) bool {
	t := req.Transport
	if t == "" {
		t = TransportHTTP
	}
	if !slices.Contains(r.transports, t) {
		return false
	}
	m := strings.ToUpper(req.Method)
	if m == "" {
		m = http.MethodGet
	}
	if slices.Contains(r.methods, m) {
		return true
	}
	return m == http.MethodHead && slices.Contains(r.methods, http.MethodGet)
}

// Router holds an ordered list of route definitions.
type Router[T any] struct {
	routes []*route[T]
}

// New returns an empty Router.
func New[T any]() *Router[T] {
	return &Router[T]{}
}

// Add registers a route. Empty transports default to HTTP and empty methods
// default to GET. An invalid pattern rejects the whole route.
func (r *Router[T]) Add(transports []Transport, methods []string, patterns []string, h Handler[T]) error {
	if h == nil {
		return fmt.Errorf("router: nil handler for %v", patterns)
	}
	if len(patterns) == 0 {
		return fmt.Errorf("%w: no patterns given", apperr.ErrInvalidPattern)
	}
	rt := &route[T]{handler: h}
	for _, p := range patterns {
		compiled, err := Compile(p)
		if err != nil {
			return err
		}
		rt.patterns = append(rt.patterns, compiled)
	}
	rt.transports = slices.Clone(transports)
	if len(rt.transports) == 0 {
		rt.transports = []Transport{TransportHTTP}
	}
	for _, m := range methods {
		rt.methods = append(rt.methods, strings.ToUpper(m))
	}
	if len(rt.methods) == 0 {
		rt.methods = []string{http.MethodGet}
	}
	r.routes = append(r.routes, rt)
	return nil
}

// MustAdd is Add but panics on error.
func (r *Router[T]) MustAdd(transports []Transport, methods []string, patterns []string, h Handler[T]) {
	if err := r.Add(transports, methods, patterns, h); err != nil {
		panic(err)
	}
}

// Lookup finds the first route and pattern matching req without invoking
// the handler.
func (r *Router[T]) Lookup(req Request) (*Match, Handler[T], bool) {
	for _, rt := range r.routes {
		if !rt.accepts(req) {
			continue
		}
		for _, p := range rt.patterns {
			if params, ok := p.Match(req.Path); ok {
				return &Match{Path: req.Path, Pattern: p, Params: params}, rt.handler, true
			}
		}
	}
	return nil, nil, false
}

// Dispatch matches req and invokes the winning handler. It returns
// ErrNoMatch when nothing matches.
func (r *Router[T]) Dispatch(ctx context.Context, req Request) (T, *Match, error) {
	m, h, ok := r.Lookup(req)
	if !ok {
		var zero T
		return zero, nil, ErrNoMatch
	}
	v, err := h.Handle(ctx, m)
	return v, m, err
}

// Patterns returns the source of every registered pattern in dispatch order.
func (r *Router[T]) Patterns() []string {
	var out []string
	for _, rt := range r.routes {
		for _, p := range rt.patterns {
			out = append(out, p.String())
		}
	}
	return out
}

package content

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/storage"
)

// Options controls how directories are turned into pages.
type Options struct {
	// Extension of the content descriptor file, including the dot.
	Extension string
	// IndexRoute is the route served for "/".
	IndexRoute string
	// ErrorRoute is the route of the page served when nothing else matches.
	ErrorRoute string
	// AllowedExtensions lists the file extensions exposed as page files.
	AllowedExtensions []string
	// Now returns the current time for publication checks. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the stock options.
func DefaultOptions() Options {
	return Options{
		Extension:         ".md",
		IndexRoute:        "index",
		ErrorRoute:        "404",
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".svg", ".pdf"},
		Now:               time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Extension == "" {
		o.Extension = def.Extension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	if o.IndexRoute == "" {
		o.IndexRoute = def.IndexRoute
	}
	if o.ErrorRoute == "" {
		o.ErrorRoute = def.ErrorRoute
	}
	if o.AllowedExtensions == nil {
		o.AllowedExtensions = def.AllowedExtensions
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// Conflict reports sibling directories whose names collapse to the same
// route component once their ordering prefixes are stripped. Only the first
// name in listing order is reachable.
type Conflict struct {
	Dir       string   `json:"dir"`
	Component string   `json:"component"`
	Names     []string `json:"names"`
}

func (c Conflict) String() string {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	return fmt.Sprintf("%s: %q claimed by %s", dir, c.Component, strings.Join(c.Names, ", "))
}

// Site is the root of the content tree and owns the page registry.
type Site struct {
	base

	store   storage.Provider
	opts    Options
	aliases map[string]string

	regMu sync.Mutex
	pages map[string]*Page
}

// NewSite creates the tree root over store. data holds site-level values
// such as the title and the alias table.
func NewSite(store storage.Provider, data map[string]any, opts Options) (*Site, error) {
	if store == nil || !store.IsDir("") {
		return nil, fmt.Errorf("content: new site: %w", apperr.ErrMissingRoot)
	}
	if data == nil {
		data = map[string]any{}
	}
	s := &Site{
		store:   store,
		opts:    opts.withDefaults(),
		aliases: parseAliases(data["aliases"]),
		pages:   make(map[string]*Page),
	}
	s.site = s
	s.path = store.Root()
	s.rel = ""
	s.route = "/"
	s.data = data
	return s, nil
}

func parseAliases(v any) map[string]string {
	out := make(map[string]string)
	m, ok := asMap(v)
	if !ok {
		return out
	}
	for from, to := range m {
		out[strings.Trim(from, "/")] = strings.Trim(fmt.Sprint(to), "/")
	}
	return out
}

// Store returns the storage provider backing the tree.
func (s *Site) Store() storage.Provider { return s.store }

// Options returns the effective options.
func (s *Site) Options() Options { return s.opts }

// Title returns the site title.
func (s *Site) Title() string {
	if t, ok := s.data["title"].(string); ok && t != "" {
		return t
	}
	return "Formwork"
}

// Alias returns the alias target for route, both without surrounding slashes.
func (s *Site) Alias(route string) (string, bool) {
	to, ok := s.aliases[strings.Trim(route, "/")]
	return to, ok
}

// Aliases returns a copy of the alias table.
func (s *Site) Aliases() map[string]string {
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

func (s *Site) Parent() Node                  { return nil }
func (s *Site) Parents() []Node               { return nil }
func (s *Site) Level() int                    { return 0 }
func (s *Site) Children() ([]*Page, error)    { return s.loadChildren() }
func (s *Site) Descendants() ([]*Page, error) { return s.loadDescendants() }
func (s *Site) IsSite() bool                  { return true }
func (s *Site) IsIndexPage() bool             { return false }
func (s *Site) IsErrorPage() bool             { return false }
func (s *Site) IsDeletable() bool             { return false }

// Lookup implements Node.
func (s *Site) Lookup(key string) (any, error) {
	switch key {
	case "title":
		return s.Title(), nil
	case "route":
		return s.route, nil
	case "path":
		return s.path, nil
	case "aliases":
		return s.Aliases(), nil
	}
	if v, ok := lookupData(s.data, key); ok {
		return v, nil
	}
	return nil, &KeyError{Key: key}
}

// ModifiedSince reports whether anything in the content directory changed after t.
func (s *Site) ModifiedSince(t time.Time) (bool, error) {
	changed, err := s.store.ModifiedSince("", t)
	if err != nil {
		return false, fmt.Errorf("content: modified since: %w", err)
	}
	return changed, nil
}

// Retrieve returns the page for the directory at rel, constructing it on
// first use. The same rel always yields the same *Page.
func (s *Site) Retrieve(rel string) (*Page, error) {
	rel = cleanRel(rel)
	key := s.store.Abs(rel)

	s.regMu.Lock()
	p, ok := s.pages[key]
	s.regMu.Unlock()
	if ok {
		return p, nil
	}

	p, err := newPage(s, rel)
	if err != nil {
		return nil, err
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()
	if existing, ok := s.pages[key]; ok {
		return existing, nil
	}
	s.pages[key] = p
	return p, nil
}

// FindPage descends the tree one route component at a time. It returns nil
// when no directory matches or the matching directory has no descriptor.
func (s *Site) FindPage(route string) (*Page, error) {
	trimmed := strings.Trim(route, "/")
	if trimmed == "" {
		trimmed = strings.Trim(s.opts.IndexRoute, "/")
	}

	rel := ""
	for _, component := range strings.Split(trimmed, "/") {
		if component == "" {
			continue
		}
		dirs, err := s.store.ListDirs(rel)
		if err != nil {
			return nil, fmt.Errorf("content: find page %q: %w", route, err)
		}
		found := ""
		for _, dir := range dirs {
			if StripPrefix(dir) == component {
				found = dir
				break
			}
		}
		if found == "" {
			return nil, nil
		}
		rel = joinRel(rel, found)
	}
	if rel == "" {
		return nil, nil
	}

	p, err := s.Retrieve(rel)
	if err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return nil, nil
	}
	return p, nil
}

// IndexPage returns the page served for "/", or nil.
func (s *Site) IndexPage() (*Page, error) {
	return s.FindPage(s.opts.IndexRoute)
}

// ErrorPage returns the designated error page, or nil when it does not exist.
func (s *Site) ErrorPage() (*Page, error) {
	return s.FindPage(s.opts.ErrorRoute)
}

// Conflicts walks every directory below the root and returns the sibling
// groups that strip to the same route component.
func (s *Site) Conflicts() ([]Conflict, error) {
	var out []Conflict
	var visit func(rel string) error
	visit = func(rel string) error {
		dirs, err := s.store.ListDirs(rel)
		if err != nil {
			return fmt.Errorf("content: conflicts in %q: %w", rel, err)
		}
		groups := make(map[string][]string)
		var order []string
		for _, dir := range dirs {
			c := StripPrefix(dir)
			if _, seen := groups[c]; !seen {
				order = append(order, c)
			}
			groups[c] = append(groups[c], dir)
		}
		for _, c := range order {
			if len(groups[c]) > 1 {
				out = append(out, Conflict{Dir: rel, Component: c, Names: groups[c]})
			}
		}
		for _, dir := range dirs {
			if err := visit(joinRel(rel, dir)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(""); err != nil {
		return nil, err
	}
	return out, nil
}

// walk calls fn for every directory below rel in depth-first listing order,
// including directories without a descriptor.
func (s *Site) walk(rel string, fn func(*Page)) error {
	dirs, err := s.store.ListDirs(rel)
	if err != nil {
		return fmt.Errorf("content: walk %q: %w", rel, err)
	}
	for _, dir := range dirs {
		child := joinRel(rel, dir)
		p, err := s.Retrieve(child)
		if err != nil {
			return err
		}
		fn(p)
		if err := s.walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func cleanRel(rel string) string {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	return rel
}

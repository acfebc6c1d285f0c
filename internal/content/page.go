package content

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aukc1970/formwork/internal/parser"
)

// Page is a content directory. A directory without a descriptor file is an
// empty page: it still exists in the registry but is never resolved.
type Page struct {
	base

	name       string
	slug       string
	num        int
	hasNum     bool
	template   string
	descriptor string
	body       string
	tags       []string
	modTime    time.Time
	empty      bool

	parentLoaded bool
	parent       Node
	filesLoaded  bool
	files        []*File
}

func newPage(s *Site, rel string) (*Page, error) {
	name := path.Base(rel)
	p := &Page{
		name: name,
		slug: StripPrefix(name),
	}
	p.num, p.hasNum = orderNum(name)
	p.data = map[string]any{}
	p.site = s
	p.path = s.store.Abs(rel)
	p.rel = rel
	p.route = routeFor(rel)

	if !s.store.IsDir(rel) {
		p.empty = true
		return p, nil
	}
	info, err := s.store.Stat(rel)
	if err != nil {
		return nil, fmt.Errorf("content: stat %q: %w", rel, err)
	}
	p.modTime = info.ModTime()

	files, err := s.store.ListFiles(rel)
	if err != nil {
		return nil, fmt.Errorf("content: list %q: %w", rel, err)
	}
	for _, f := range files {
		if strings.EqualFold(path.Ext(f), s.opts.Extension) {
			p.descriptor = joinRel(rel, f)
			p.template = strings.TrimSuffix(f, path.Ext(f))
			break
		}
	}
	if p.descriptor == "" {
		p.empty = true
		return p, nil
	}

	raw, err := s.store.Read(p.descriptor)
	if err != nil {
		return nil, fmt.Errorf("content: read %q: %w", p.descriptor, err)
	}
	res, err := parser.ParseStrict(raw)
	if err != nil {
		return nil, fmt.Errorf("content: parse %q: %w", p.descriptor, err)
	}
	if res.Frontmatter != nil {
		p.data = res.Frontmatter
	}
	p.body = res.Body
	p.tags = res.Tags
	if _, ok := p.data["title"]; !ok && res.Title != "" {
		p.data["title"] = res.Title
	}
	if di, err := s.store.Stat(p.descriptor); err == nil && di.ModTime().After(p.modTime) {
		p.modTime = di.ModTime()
	}
	return p, nil
}

func routeFor(rel string) string {
	if rel == "" {
		return "/"
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = StripPrefix(part)
	}
	return "/" + strings.Join(parts, "/") + "/"
}

// IsEmpty reports whether the directory has no content descriptor.
func (p *Page) IsEmpty() bool { return p.empty }

// Name returns the directory name including any ordering prefix.
func (p *Page) Name() string { return p.name }

// Slug returns the route component of the page.
func (p *Page) Slug() string { return p.slug }

// Num returns the ordering prefix.
func (p *Page) Num() (int, bool) { return p.num, p.hasNum }

// Site returns the tree the page was loaded into. After a reload it differs
// from the engine's current site.
func (p *Page) Site() *Site { return p.site }

// Template returns the descriptor file stem.
func (p *Page) Template() string { return p.template }

// Body returns the descriptor content after the frontmatter.
func (p *Page) Body() string { return p.body }

// Tags returns the page tags.
func (p *Page) Tags() []string { return p.tags }

// HasTag reports whether the page carries tag, ignoring case.
func (p *Page) HasTag(tag string) bool {
	return slices.ContainsFunc(p.tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

// LastModified returns the latest of the directory and descriptor mtimes.
func (p *Page) LastModified() time.Time { return p.modTime }

func (p *Page) Title() string {
	if t, ok := p.data["title"].(string); ok && t != "" {
		return t
	}
	return p.slug
}

func (p *Page) Published() bool {
	if !toBool(p.data["published"], true) {
		return false
	}
	now := p.site.opts.Now()
	if t, ok := toTime(p.data["publish_date"]); ok && now.Before(t) {
		return false
	}
	if t, ok := toTime(p.data["unpublish_date"]); ok && !now.Before(t) {
		return false
	}
	return true
}

func (p *Page) Routable() bool  { return toBool(p.data["routable"], true) }
func (p *Page) Cacheable() bool { return toBool(p.data["cacheable"], true) }
func (p *Page) Visible() bool   { return toBool(p.data["visible"], p.hasNum) }

// Listing reports whether the page accepts tag and pagination parameters.
func (p *Page) Listing() bool {
	if t, ok := p.data["type"].(string); ok && t == "listing" {
		return true
	}
	return toBool(p.data["listing"], false)
}

// Canonical returns the canonical route without surrounding slashes. The
// second result is false when the page does not declare one.
func (p *Page) Canonical() (string, bool) {
	v, ok := p.data["canonical"]
	if !ok || v == nil {
		return "", false
	}
	return strings.Trim(fmt.Sprint(v), "/"), true
}

// Headers returns extra response headers declared by the page.
func (p *Page) Headers() map[string]string {
	out := map[string]string{}
	m, ok := asMap(p.data["headers"])
	if !ok {
		return out
	}
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ResponseStatus returns the declared status, 404 for the error page and
// 200 otherwise.
func (p *Page) ResponseStatus() int {
	switch v := p.data["response_status"].(type) {
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if p.IsErrorPage() {
		return 404
	}
	return 200
}

func (p *Page) IsSite() bool { return false }

func (p *Page) IsIndexPage() bool {
	return strings.Trim(p.route, "/") == strings.Trim(p.site.opts.IndexRoute, "/")
}

func (p *Page) IsErrorPage() bool {
	return strings.Trim(p.route, "/") == strings.Trim(p.site.opts.ErrorRoute, "/")
}

// IsDeletable reports whether the page may be removed: it has no children
// and is neither the index nor the error page.
func (p *Page) IsDeletable() bool {
	if p.IsIndexPage() || p.IsErrorPage() {
		return false
	}
	children, err := p.Children()
	return err == nil && len(children) == 0
}

// Parent returns the page of the enclosing directory, or the Site for
// top-level pages.
func (p *Page) Parent() Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parentLoaded {
		return p.parent
	}
	var parent Node = p.site
	if dir := path.Dir(p.rel); dir != "." && dir != "" {
		if q, err := p.site.Retrieve(dir); err == nil {
			parent = q
		}
	}
	p.parent = parent
	p.parentLoaded = true
	return parent
}

func (p *Page) Parents() []Node               { return p.loadParents(p) }
func (p *Page) Level() int                    { return len(p.Parents()) }
func (p *Page) Children() ([]*Page, error)    { return p.loadChildren() }
func (p *Page) Descendants() ([]*Page, error) { return p.loadDescendants() }

// Files returns the page files with an allowed extension, in listing order.
func (p *Page) Files() ([]*File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filesLoaded {
		return p.files, nil
	}
	var out []*File
	if !p.empty {
		names, err := p.site.store.ListFiles(p.rel)
		if err != nil {
			return nil, fmt.Errorf("content: files of %q: %w", p.rel, err)
		}
		for _, name := range names {
			if !p.allowed(name) {
				continue
			}
			f, err := newFile(p.site.store, joinRel(p.rel, name))
			if err != nil {
				return nil, fmt.Errorf("content: file %q: %w", name, err)
			}
			out = append(out, f)
		}
	}
	p.files = out
	p.filesLoaded = true
	return out, nil
}

// File returns the named page file, or nil.
func (p *Page) File(name string) (*File, error) {
	files, err := p.Files()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, nil
}

func (p *Page) allowed(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return slices.Contains(p.site.opts.AllowedExtensions, ext)
}

// Lookup implements Node. Well-known attributes take precedence over data.
func (p *Page) Lookup(key string) (any, error) {
	switch key {
	case "path":
		return p.path, nil
	case "relative_path":
		return p.rel, nil
	case "route":
		return p.route, nil
	case "name":
		return p.name, nil
	case "slug":
		return p.slug, nil
	case "num":
		if p.hasNum {
			return p.num, nil
		}
	case "template":
		return p.template, nil
	case "title":
		return p.Title(), nil
	case "body":
		return p.body, nil
	case "tags":
		return p.tags, nil
	case "published":
		return p.Published(), nil
	case "routable":
		return p.Routable(), nil
	case "cacheable":
		return p.Cacheable(), nil
	case "visible":
		return p.Visible(), nil
	case "listing":
		return p.Listing(), nil
	case "headers":
		return p.Headers(), nil
	case "response_status":
		return p.ResponseStatus(), nil
	case "level":
		return p.Level(), nil
	case "last_modified":
		return p.modTime, nil
	}
	if v, ok := lookupData(p.data, key); ok {
		return v, nil
	}
	return nil, &KeyError{Key: key}
}

var (
	_ Node = (*Site)(nil)
	_ Node = (*Page)(nil)
)

// Package render turns resolved pages into HTTP responses.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
	"github.com/aukc1970/formwork/internal/router"
)

// DefaultPerPage is the listing page size.
const DefaultPerPage = 10

// View is everything a template needs to render one request.
type View struct {
	Site   *content.Site
	Page   *content.Page
	Params router.Params
	Status int
}

// Renderer produces the response for a view.
type Renderer interface {
	Render(ctx context.Context, v *View) (*models.Response, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, v *View) (*models.Response, error)

func (f RendererFunc) Render(ctx context.Context, v *View) (*models.Response, error) {
	return f(ctx, v)
}

const builtin = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Page.Title}} | {{.Site.Title}}</title></head>
<body>
<h1>{{.Page.Title}}</h1>
<pre>{{.Page.Body}}</pre>
{{- if .Items}}
<ul>
{{- range .Items}}
<li><a href="{{.Route}}">{{.Title}}</a></li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`

// Templates renders pages with html/template files named after the page
// template, falling back to "default" and then to a built-in layout.
type Templates struct {
	dir     string
	ext     string
	perPage int

	mu     sync.RWMutex
	parsed map[string]*template.Template
}

// NewTemplates loads templates from dir on demand.
func NewTemplates(dir, ext string, perPage int) *Templates {
	if ext == "" {
		ext = ".html"
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Templates{dir: dir, ext: ext, perPage: perPage, parsed: map[string]*template.Template{}}
}

// Reset drops parsed templates so edits are picked up.
func (t *Templates) Reset() {
	t.mu.Lock()
	t.parsed = map[string]*template.Template{}
	t.mu.Unlock()
}

var funcs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
	"ago":   func(t time.Time) string { return humanize.Time(t) },
	"get": func(n content.Node, key string) string {
		return content.GetString(n, key, "")
	},
}

func (t *Templates) lookup(name string) (*template.Template, error) {
	t.mu.RLock()
	tmpl, ok := t.parsed[name]
	t.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := t.load(name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.parsed[name] = tmpl
	t.mu.Unlock()
	return tmpl, nil
}

func (t *Templates) load(name string) (*template.Template, error) {
	for _, candidate := range []string{name, "default"} {
		if t.dir == "" || candidate == "" {
			continue
		}
		file := filepath.Join(t.dir, candidate+t.ext)
		raw, err := os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render: read template %s: %w", file, err)
		}
		tmpl, err := template.New(candidate).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("render: parse template %s: %w", file, err)
		}
		return tmpl, nil
	}
	return template.New("builtin").Funcs(funcs).Parse(builtin)
}

type templateData struct {
	Site       *content.Site
	Page       *content.Page
	Params     map[string]string
	Items      []*content.Page
	Pagination Pagination
}

// Render implements Renderer.
func (t *Templates) Render(ctx context.Context, v *View) (*models.Response, error) {
	header := http.Header{}
	if v.Page == nil {
		header.Set("Content-Type", "text/plain; charset=utf-8")
		return &models.Response{Status: v.Status, Header: header, Body: []byte(http.StatusText(v.Status))}, nil
	}

	tmpl, err := t.lookup(v.Page.Template())
	if err != nil {
		return nil, err
	}

	data := templateData{Site: v.Site, Page: v.Page, Params: v.Params.Map()}
	if v.Page.Listing() {
		children, err := v.Page.Children()
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		n, _ := strconv.Atoi(v.Params.Get("paginationPage", "1"))
		data.Items, data.Pagination = Paginate(children, v.Params.Get("tagName", ""), n, t.perPage)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: execute %q: %w", v.Page.Template(), err)
	}

	header.Set("Content-Type", "text/html; charset=utf-8")
	for k, val := range v.Page.Headers() {
		header.Set(k, val)
	}
	return &models.Response{Status: v.Status, Header: header, Body: buf.Bytes()}, nil
}

var _ Renderer = (*Templates)(nil)

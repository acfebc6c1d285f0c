// Package content models the flat-file content tree: a Site root and the
// Pages found in the directory hierarchy below it.
//
// Every page is memoized by its storage path on the Site, so looking up the
// same directory twice always yields the same *Page. Relationships between
// nodes (parent, children, descendants) are computed on first access and
// kept on the node until the process exits.
package content

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Node is implemented by *Site and *Page.
type Node interface {
	// Path returns the absolute storage path of the node's directory.
	Path() string
	// RelativePath returns the slash-separated path below the content root.
	RelativePath() string
	// Route returns the logical URL path, always with leading and trailing slash.
	Route() string
	// Parent returns the nearest content ancestor, the Site for top-level
	// pages and nil for the Site itself.
	Parent() Node
	// Parents returns every ancestor from the Site down to Parent().
	Parents() []Node
	// Children returns the direct child pages in listing order.
	Children() ([]*Page, error)
	// Descendants returns every page below the node in depth-first listing order.
	Descendants() ([]*Page, error)
	// Level is the number of ancestors.
	Level() int
	// Lookup returns a well-known attribute or data value by key.
	Lookup(key string) (any, error)

	IsSite() bool
	IsIndexPage() bool
	IsErrorPage() bool
	IsDeletable() bool
}

// KeyError is returned by Lookup when neither an attribute nor a data
// entry exists for Key.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("content: no value for key %q", e.Key)
}

// base carries the state shared by Site and Page.
type base struct {
	site  *Site
	path  string
	rel   string
	route string
	data  map[string]any

	mu                sync.Mutex
	parentsLoaded     bool
	parents           []Node
	childrenLoaded    bool
	children          []*Page
	descendantsLoaded bool
	descendants       []*Page
}

func (b *base) Path() string         { return b.path }
func (b *base) RelativePath() string { return b.rel }
func (b *base) Route() string        { return b.route }

// Data returns the raw data map. Callers must not modify it.
func (b *base) Data() map[string]any {
	return b.data
}

// loadChildren returns the cached child pages, loading them on first call.
func (b *base) loadChildren() ([]*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.childrenLoaded {
		return b.children, nil
	}
	dirs, err := b.site.store.ListDirs(b.rel)
	if err != nil {
		return nil, fmt.Errorf("content: list children of %q: %w", b.rel, err)
	}
	var out []*Page
	for _, dir := range dirs {
		p, err := b.site.Retrieve(joinRel(b.rel, dir))
		if err != nil {
			return nil, err
		}
		if !p.IsEmpty() {
			out = append(out, p)
		}
	}
	b.children = out
	b.childrenLoaded = true
	return out, nil
}

func (b *base) loadDescendants() ([]*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.descendantsLoaded {
		return b.descendants, nil
	}
	var out []*Page
	if err := b.site.walk(b.rel, func(p *Page) {
		if !p.IsEmpty() {
			out = append(out, p)
		}
	}); err != nil {
		return nil, err
	}
	b.descendants = out
	b.descendantsLoaded = true
	return out, nil
}

func (b *base) loadParents(self Node) []Node {
	b.mu.Lock()
	if b.parentsLoaded {
		defer b.mu.Unlock()
		return b.parents
	}
	b.mu.Unlock()

	// Parent() takes the same lock, so the chain is built unlocked.
	var chain []Node
	for n := self.Parent(); n != nil; n = n.Parent() {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.parentsLoaded {
		b.parents = chain
		b.parentsLoaded = true
	}
	return b.parents
}

// lookupData resolves key in data, first literally and then as a dotted path
// through nested maps.
func lookupData(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	var cur any = data
	for _, seg := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}

// GetString returns a string value from n, or def when absent or not a string.
func GetString(n Node, key, def string) string {
	v, err := n.Lookup(key)
	if err != nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return def
}

// GetBool returns a boolean value from n, or def when absent or not a bool.
func GetBool(n Node, key string, def bool) bool {
	v, err := n.Lookup(key)
	if err != nil {
		return def
	}
	return toBool(v, def)
}

func toBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "on", "1":
			return true
		case "false", "no", "off", "0":
			return false
		}
	case int:
		return b != 0
	}
	return def
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

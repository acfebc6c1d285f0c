// Package testutil provides shared test helpers for building content trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/storage"
)

// Fixed is the clock used by test sites.
var Fixed = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// ContentDir writes files (relative path → content) into a temporary
// directory. A path ending in "/" creates an empty directory.
func ContentDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Store creates a content directory and a storage.Provider over it.
func Store(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := ContentDir(t, files)
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Site creates a content tree over files with default options and a fixed clock.
func Site(t *testing.T, files map[string]string, data map[string]any) *content.Site {
	t.Helper()
	_, store := Store(t, files)
	opts := content.DefaultOptions()
	opts.Now = func() time.Time { return Fixed }
	site, err := content.NewSite(store, data, opts)
	if err != nil {
		t.Fatal(err)
	}
	return site
}

// Blog is a small tree used across packages: an index, an error page, a
// listing blog with two posts, an about page with an image and a moved page.
func Blog() map[string]string {
	return map[string]string{
		"index/page.md":             "---\ntitle: Home\n---\nWelcome",
		"404/page.md":               "---\ntitle: Not Found\n---\nNothing here",
		"01-about/page.md":          "---\ntitle: About\n---\nAbout us",
		"01-about/photo.png":        "\x89PNG\r\n\x1a\n",
		"01-about/notes.txt":        "not exposed",
		"02-blog/blog.md":           "---\ntitle: Blog\ntype: listing\n---\n",
		"02-blog/01-first/post.md":  "---\ntitle: First\ntags: [go]\n---\nfirst",
		"02-blog/02-second/post.md": "---\ntitle: Second\n---\nsecond",
		"old-page/page.md":          "---\ntitle: Moved\ncanonical: /new-page/\n---\n",
		"new-page/page.md":          "---\ntitle: New\ncanonical: /new-page/\n---\n",
		"hidden/page.md":            "---\ntitle: Hidden\npublished: false\n---\n",
		"internal/page.md":          "---\ntitle: Internal\nroutable: false\n---\n",
		"03-contact/page.md":        "---\ntitle: Contact\n---\n",
		"empty/":                    "",
	}
}

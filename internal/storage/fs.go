package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// FS implements Provider on top of a billy file system.
type FS struct {
	root string // absolute path to content directory
	fs   billy.Filesystem
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, fs: osfs.New(abs)}, nil
}

// NewBillyFS wraps an existing billy file system. root is only used to
// report absolute paths.
func NewBillyFS(fs billy.Filesystem, root string) *FS {
	return &FS{root: root, fs: fs}
}

// Root returns the absolute content directory.
func (f *FS) Root() string {
	return f.root
}

// Abs returns the absolute storage path for rel.
func (f *FS) Abs(rel string) string {
	clean, err := f.safePath(rel)
	if err != nil || clean == "" {
		return f.root
	}
	return filepath.Join(f.root, filepath.FromSlash(clean))
}

// safePath normalises a relative path and rejects any that would escape
// the content root (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." || rel == "/" {
		return "", nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("storage: path escapes content root: %s", rel)
		}
	}
	cleaned := path.Clean(rel)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// Scan lists dir sorted by name.
func (f *FS) Scan(dir string, all bool) ([]os.FileInfo, error) {
	p, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := f.fs.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", dir, err)
	}
	out := entries[:0]
	for _, e := range entries {
		if !all && !isVisible(e.Name()) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b os.FileInfo) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out, nil
}

// ListDirs returns visible subdirectory names of dir.
func (f *FS) ListDirs(dir string) ([]string, error) {
	entries, err := f.Scan(dir, false)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListFiles returns visible regular file names of dir.
func (f *FS) ListFiles(dir string) ([]string, error) {
	entries, err := f.Scan(dir, false)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Mode().IsRegular() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Stat returns file info for a content path.
func (f *FS) Stat(rel string) (os.FileInfo, error) {
	p, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	return info, nil
}

// IsDir reports whether rel is an existing directory.
func (f *FS) IsDir(rel string) bool {
	info, err := f.Stat(rel)
	return err == nil && info.IsDir()
}

// Read returns the raw bytes of a content file.
func (f *FS) Read(rel string) ([]byte, error) {
	file, err := f.Open(rel)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Open opens a content file for reading.
func (f *FS) Open(rel string) (io.ReadSeekCloser, error) {
	p, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, fmt.Errorf("storage: open %s: %w", rel, os.ErrInvalid)
	}
	file, err := f.fs.Open(p)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", rel, err)
	}
	return file, nil
}

// ModifiedSince walks dir recursively and reports whether any entry,
// including dir itself, has a modification time after t. The walk stops
// at the first hit.
func (f *FS) ModifiedSince(dir string, t time.Time) (bool, error) {
	info, err := f.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	if info.ModTime().After(t) {
		return true, nil
	}
	if !info.IsDir() {
		return false, nil
	}
	entries, err := f.Scan(dir, false)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ModTime().After(t) {
			return true, nil
		}
		if e.IsDir() {
			changed, err := f.ModifiedSince(path.Join(dir, e.Name()), t)
			if err != nil || changed {
				return changed, err
			}
		}
	}
	return false, nil
}

func isVisible(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".")
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)

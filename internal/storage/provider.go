// Package storage defines the read-only content file-system abstraction.
package storage

import (
	"io"
	"os"
	"time"
)

// Provider is the interface for content directory access.
// All paths are slash-separated and relative to the content root.
type Provider interface {
	// Root returns the absolute path of the content directory.
	Root() string
	// Abs returns the absolute storage path for a relative path.
	Abs(path string) string
	// Scan lists the entries of dir sorted by name. Hidden entries are
	// omitted unless all is true.
	Scan(dir string, all bool) ([]os.FileInfo, error)
	// ListDirs returns the visible subdirectory names of dir in listing order.
	ListDirs(dir string) ([]string, error)
	// ListFiles returns the visible regular file names of dir in listing order.
	ListFiles(dir string) ([]string, error)
	// Stat returns file info for path.
	Stat(path string) (os.FileInfo, error)
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Open opens the file at path for streaming.
	Open(path string) (io.ReadSeekCloser, error)
	// ModifiedSince reports whether dir or anything below it changed after t.
	ModifiedSince(dir string, t time.Time) (bool, error)
}

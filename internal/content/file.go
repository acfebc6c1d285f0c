package content

import (
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aukc1970/formwork/internal/storage"
)

// File is an asset stored in a page directory.
type File struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Extension string    `json:"extension"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

func newFile(store storage.Provider, rel string) (*File, error) {
	info, err := store.Stat(rel)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(path.Ext(rel))
	return &File{
		Name:      path.Base(rel),
		Path:      rel,
		Extension: ext,
		MimeType:  detectMime(store, rel, ext),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

// detectMime prefers the extension table and sniffs the first bytes of the
// file when the extension is unknown.
func detectMime(store storage.Provider, rel, ext string) string {
	if ext == ".svg" {
		return "image/svg+xml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	f, err := store.Open(rel)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

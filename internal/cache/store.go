// Package cache stores rendered responses keyed by resolved route.
//
// A Store is the raw key/value backend (in-memory LRU or SQLite). SiteCache
// layers expiry and content-tree staleness checks on top of a Store.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/models"
)

// ErrMiss is returned by Store.Fetch when the key is absent.
var ErrMiss = fmt.Errorf("cache: miss: %w", apperr.ErrNotFound)

// Entry is a stored response and the time it was saved.
type Entry struct {
	Response *models.Response
	SavedAt  time.Time
}

// Store is a raw response store. Implementations must be safe for
// concurrent use and must not share Response values with callers.
type Store interface {
	Fetch(key string) (*Entry, error)
	Save(key string, e *Entry) error
	Delete(key string) error
	Clear() error
	Has(key string) (bool, error)
	Keys() ([]string, error)
	Close() error
}

// FetchMultiple returns the entries present for keys. Missing keys are omitted.
func FetchMultiple(s Store, keys []string) (map[string]*Entry, error) {
	out := make(map[string]*Entry, len(keys))
	for _, k := range keys {
		e, err := s.Fetch(k)
		if errors.Is(err, ErrMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = e
	}
	return out, nil
}

// SaveMultiple saves every entry, stopping at the first error.
func SaveMultiple(s Store, entries map[string]*Entry) error {
	for k, e := range entries {
		if err := s.Save(k, e); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMultiple deletes keys, stopping at the first error.
func DeleteMultiple(s Store, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// HasMultiple reports presence for each key.
func HasMultiple(s Store, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		ok, err := s.Has(k)
		if err != nil {
			return nil, err
		}
		out[k] = ok
	}
	return out, nil
}

func cloneEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	return &Entry{Response: e.Response.Clone(), SavedAt: e.SavedAt}
}

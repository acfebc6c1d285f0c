package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aukc1970/formwork/internal/models"
)

// DefaultTTL keeps responses for a week.
const DefaultTTL = 7 * 24 * time.Hour

// Tree reports whether content changed after a point in time.
type Tree interface {
	ModifiedSince(t time.Time) (bool, error)
}

// TreeFunc adapts a function to Tree.
type TreeFunc func(t time.Time) (bool, error)

func (f TreeFunc) ModifiedSince(t time.Time) (bool, error) { return f(t) }

// Options configures a SiteCache.
type Options struct {
	// TTL is the maximum age of an entry. Zero disables expiry.
	TTL time.Duration
	// CheckInterval is the minimum time between two tree modification
	// checks. Zero disables the checks.
	CheckInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
	// OnStale runs when a tree check finds changes, before the store is
	// cleared. Owners of parsed content rebuild it here.
	OnStale func()
}

// SiteCache is a Store with expiry and content-tree staleness. Store faults
// are logged and reported as misses so rendering is never blocked.
type SiteCache struct {
	store  Store
	tree   Tree
	ttl    time.Duration
	every  time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	checkedAt time.Time
	onStale   func()
	// gen counts clears. Responses rendered before a clear are refused by
	// SaveAt.
	gen uint64
}

// NewSiteCache wraps store. Entries older than the latest content change
// are dropped before the cache is returned.
func NewSiteCache(store Store, tree Tree, opts Options) (*SiteCache, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &SiteCache{
		store:   store,
		tree:    tree,
		ttl:     opts.TTL,
		every:   opts.CheckInterval,
		now:     opts.Now,
		logger:  opts.Logger,
		onStale: opts.OnStale,
	}
	if err := c.prime(); err != nil {
		return nil, err
	}
	c.checkedAt = c.now()
	return c, nil
}

func (c *SiteCache) prime() error {
	oldest, ok, err := c.oldest()
	if err != nil || !ok || c.tree == nil {
		return err
	}
	changed, err := c.tree.ModifiedSince(oldest)
	if err != nil {
		return fmt.Errorf("cache: prime: %w", err)
	}
	if changed {
		c.logger.Info("cache: content changed since last run, clearing")
		return c.store.Clear()
	}
	return nil
}

func (c *SiteCache) oldest() (time.Time, bool, error) {
	if o, ok := c.store.(interface {
		Oldest() (time.Time, bool, error)
	}); ok {
		return o.Oldest()
	}
	keys, err := c.store.Keys()
	if err != nil {
		return time.Time{}, false, err
	}
	entries, err := FetchMultiple(c.store, keys)
	if err != nil {
		return time.Time{}, false, err
	}
	var oldest time.Time
	found := false
	for _, e := range entries {
		if !found || e.SavedAt.Before(oldest) {
			oldest, found = e.SavedAt, true
		}
	}
	return oldest, found, nil
}

// OnStale replaces the stale hook.
func (c *SiteCache) OnStale(fn func()) {
	c.mu.Lock()
	c.onStale = fn
	c.mu.Unlock()
}

// Refresh runs the tree check when the check window has elapsed. On a
// change the stale hook runs first, then the store is cleared.
func (c *SiteCache) Refresh() {
	if c.every <= 0 || c.tree == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.checkedAt) < c.every {
		return
	}
	since := c.checkedAt
	c.checkedAt = now
	changed, err := c.tree.ModifiedSince(since)
	if err != nil {
		c.logger.Warn("cache: modification check failed", slog.String("error", err.Error()))
		return
	}
	if changed {
		c.logger.Debug("cache: content changed, clearing")
		if c.onStale != nil {
			c.onStale()
		}
		if err := c.clearLocked(); err != nil {
			c.logger.Warn("cache: clear failed", slog.String("error", err.Error()))
		}
	}
}

func (c *SiteCache) clearLocked() error {
	c.gen++
	return c.store.Clear()
}

func (c *SiteCache) fresh(key string, e *Entry) bool {
	if c.ttl > 0 && c.now().Sub(e.SavedAt) > c.ttl {
		if err := c.store.Delete(key); err != nil {
			c.logger.Warn("cache: delete expired failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return false
	}
	return true
}

// Fetch returns the stored response for key.
func (c *SiteCache) Fetch(key string) (*models.Response, bool) {
	c.Refresh()
	e, err := c.store.Fetch(key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache: fetch failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	if !c.fresh(key, e) {
		return nil, false
	}
	return e.Response, true
}

// Has reports whether a fresh entry exists for key.
func (c *SiteCache) Has(key string) bool {
	_, ok := c.Fetch(key)
	return ok
}

// Save stores resp under key.
func (c *SiteCache) Save(key string, resp *models.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.save(key, resp)
}

// Generation identifies the current cache contents. It changes on every
// clear.
func (c *SiteCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SaveAt stores resp only if the cache has not been cleared since gen was
// read, and reports whether it did.
func (c *SiteCache) SaveAt(key string, resp *models.Response, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.save(key, resp)
	return true
}

func (c *SiteCache) save(key string, resp *models.Response) {
	if err := c.store.Save(key, &Entry{Response: resp, SavedAt: c.now()}); err != nil {
		c.logger.Warn("cache: save failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Delete removes key.
func (c *SiteCache) Delete(key string) error {
	return c.store.Delete(key)
}

// Invalidate removes every entry for route, including paginated and tag
// variants, and returns how many were removed.
func (c *SiteCache) Invalidate(route string) (int, error) {
	keys, err := c.store.Keys()
	if err != nil {
		return 0, err
	}
	want := Key(route, nil)
	var doomed []string
	for _, k := range keys {
		if RouteOf(k) == want {
			doomed = append(doomed, k)
		}
	}
	return len(doomed), DeleteMultiple(c.store, doomed)
}

// Clear removes every entry.
func (c *SiteCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked()
}

// Keys lists the stored keys.
func (c *SiteCache) Keys() ([]string, error) {
	return c.store.Keys()
}

// Close closes the underlying store.
func (c *SiteCache) Close() error {
	return c.store.Close()
}

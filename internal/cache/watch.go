package cache

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups bursts of file events into one invalidation.
const DefaultDebounce = 200 * time.Millisecond

// EventCallback is called after a watcher-driven cache clear with the
// slash-separated path of the last changed entry.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the content root and, after each burst
// of changes, runs cb and then clears c until ctx is cancelled. cb runs
// first so callers can rebuild parsed content before the store empties. c
// may be nil when only the callback is wanted. New directories are added to the watch list as they
// appear.
func Watch(ctx context.Context, root string, c *SiteCache, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	schedule := func(rel string) {
		pending = rel
		if timer == nil {
			timer = time.NewTimer(DefaultDebounce)
			fire = timer.C
		} else {
			timer.Reset(DefaultDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer, fire = nil, nil
			if cb != nil {
				cb("content.changed", pending)
			}
			if c != nil {
				if err := c.Clear(); err != nil {
					logger.Warn("watcher: cache clear failed", slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: cache cleared", slog.String("path", pending))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hidden(rel) {
				continue
			}
			schedule(filepath.ToSlash(rel))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watch resyncs the catalog whenever a guide file under a local source
// changes, coalescing bursts of events that arrive within debounce. It
// blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration) error {
	dirs := c.LocalSources()
	if len(dirs) == 0 {
		return errNoLocalSources
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := addWatchesRecursive(w, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	c.log.Info("Catalog watcher started", "dirs", dirs, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addWatchesRecursive(w, event.Name); err != nil {
						c.log.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !c.relevant(event.Name) {
				continue
			}
			c.log.Debug("Guide change detected", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Error("Watcher error", "error", err)

		case <-timer.C:
			if _, err := c.Sync(ctx); err != nil {
				c.log.Error("Resync after change failed", "error", err)
			}
		}
	}
}

// relevant reports whether path is a file the sync pattern selects.
func (c *Catalog) relevant(path string) bool {
	for _, dir := range c.LocalSources() {
		rel, err := filepath.Rel(dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if ok, _ := doublestar.Match(c.cfg.Pattern, filepath.ToSlash(rel)); ok {
			return true
		}
	}
	return false
}

func addWatchesRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); path != root && strings.HasPrefix(base, ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// Package catalog maintains a searchable set of plant care guides synced
// from local directories and git repositories of markdown files.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conorfennell/leafcare/internal/gitsource"
	"github.com/conorfennell/leafcare/internal/storage"
)

// StoreKey is where the last synced catalog is persisted.
const StoreKey = "care_catalog"

const DefaultPattern = "**/*.md"

// Config lists the guide sources and how to sync them.
type Config struct {
	// Sources are local directories or git URLs.
	Sources      []string `koanf:"sources"`
	ReposDir     string   `koanf:"repos_dir"`
	Pattern      string   `koanf:"pattern"`
	SyncSchedule string   `koanf:"sync_schedule"`
	Watch        bool     `koanf:"watch"`
}

// SyncStats summarizes one sync.
type SyncStats struct {
	Sources int `json:"sources"`
	Failed  int `json:"failed"`
	Files   int `json:"files"`
	Entries int `json:"entries"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`
}

// Catalog owns the Index and keeps it in step with the configured sources.
type Catalog struct {
	cfg   Config
	store storage.Store
	index *Index
	log   *slog.Logger

	// syncMu serializes syncs started by the scheduler, watcher and API.
	syncMu sync.Mutex
}

func New(cfg Config, store storage.Store, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.ReposDir == "" {
		cfg.ReposDir = "repos"
	}
	return &Catalog{
		cfg:   cfg,
		store: store,
		index: NewIndex(),
		log:   log.With("component", "catalog"),
	}
}

func (c *Catalog) Index() *Index {
	return c.index
}

// Search delegates to the index.
func (c *Catalog) Search(query string, limit int) []Match {
	return c.index.Search(query, limit)
}

// Lookup delegates to the index.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	return c.index.Lookup(name)
}

// Load restores the last synced catalog from the store. A missing or
// malformed document leaves the index empty.
func (c *Catalog) Load(ctx context.Context) error {
	raw, ok, err := c.store.Get(ctx, StoreKey)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", StoreKey, err)
	}
	if !ok || raw == "" {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.log.Warn("Discarding malformed persisted data", "key", StoreKey, "error", err)
		return nil
	}
	c.index.Replace(entries)
	c.log.Info("Catalog loaded", "entries", len(entries))
	return nil
}

// Sync re-reads every source and replaces the index. A source that cannot
// be fetched keeps the entries it contributed last time. Only persistence
// failures are returned as errors.
func (c *Catalog) Sync(ctx context.Context) (SyncStats, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.log.Info("Starting sync process for all sources...", "sources", len(c.cfg.Sources))
	previous := c.index.Entries()
	stats := SyncStats{Sources: len(c.cfg.Sources)}

	var entries []Entry
	seen := make(map[string]bool)
	add := func(e Entry) {
		if seen[e.Hash] {
			c.log.Debug("Duplicate guide skipped", "name", e.Name, "file", e.File)
			return
		}
		seen[e.Hash] = true
		entries = append(entries, e)
	}

	for _, source := range c.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		dir, err := c.prepare(ctx, source)
		if err == nil {
			var found []Entry
			found, err = c.reconcile(source, dir, &stats)
			for _, e := range found {
				add(e)
			}
		}
		if err != nil {
			stats.Failed++
			c.log.Error("Error syncing source", "source", source, "error", err)
			for _, e := range previous {
				if e.Source == source {
					add(e)
				}
			}
		}
	}

	before := make(map[string]bool, len(previous))
	for _, e := range previous {
		before[e.Hash] = true
	}
	for _, e := range entries {
		if !before[e.Hash] {
			stats.Added++
		}
		delete(before, e.Hash)
	}
	stats.Removed = len(before)
	stats.Entries = len(entries)

	if entries == nil {
		entries = []Entry{}
	}
	c.index.Replace(entries)
	if err := c.persist(ctx, entries); err != nil {
		return stats, err
	}

	c.log.Info("Sync process complete.",
		"entries", stats.Entries,
		"added", stats.Added,
		"removed", stats.Removed,
		"failed_sources", stats.Failed,
		"errors", stats.Errors,
	)
	return stats, nil
}

// prepare returns the local directory holding source, cloning or pulling
// git sources first.
func (c *Catalog) prepare(ctx context.Context, source string) (string, error) {
	if !gitsource.IsURL(source) {
		info, err := os.Stat(source)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", source)
		}
		return source, nil
	}
	dir, err := gitsource.LocalPath(c.cfg.ReposDir, source)
	if err != nil {
		return "", err
	}
	if err := gitsource.Sync(ctx, source, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// reconcile parses every matching file under dir. Per-file parse errors
// are counted and logged; whatever parsed is kept.
func (c *Catalog) reconcile(source, dir string, stats *SyncStats) ([]Entry, error) {
	files, err := doublestar.Glob(os.DirFS(dir), c.cfg.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to match %q in %s: %w", c.cfg.Pattern, dir, err)
	}

	var out []Entry
	for _, rel := range files {
		stats.Files++
		parsed, parseErr := ParseFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if parseErr != nil {
			stats.Errors++
			c.log.Warn("Failed to parse guide file", "file", rel, "error", parseErr)
		}
		for _, e := range parsed {
			e.Hash = Hash(e)
			e.Source = source
			e.File = rel
			out = append(out, e)
		}
	}
	c.log.Debug("reconciliation complete", "source", source, "files", len(files), "entries", len(out))
	return out, nil
}

func (c *Catalog) persist(ctx context.Context, entries []Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", StoreKey, err)
	}
	if err := c.store.Set(ctx, StoreKey, string(b)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", StoreKey, err)
	}
	return nil
}

// LocalSources returns the configured sources that are directories, the
// ones Watch can observe.
func (c *Catalog) LocalSources() []string {
	var dirs []string
	for _, s := range c.cfg.Sources {
		if !gitsource.IsURL(s) {
			dirs = append(dirs, s)
		}
	}
	return dirs
}

var errNoLocalSources = errors.New("no local catalog sources to watch")

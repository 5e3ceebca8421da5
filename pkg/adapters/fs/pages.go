// Package fs serves canvas pages from a directory of files. Each matching
// file holds one page: YAML frontmatter in Markdown, or a whole JSON or
// YAML document, with id, title and emoji fields.
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/canopy/pkg/core"
)

// DefaultPattern matches every supported page file below the directory.
const DefaultPattern = "**/*.{md,yaml,yml,json}"

// DefaultSystemDir holds the parse cache.
const DefaultSystemDir = ".canopy"

// Config holds the configuration for a PageDir.
type Config struct {
	Path        string
	Pattern     string
	SystemDir   string
	MustExist   bool
	NoCache     bool
	Logger      *slog.Logger
	Serializers map[string]Serializer
}

// PageDir is a core.PageSource backed by a directory.
type PageDir struct {
	Path   string
	config Config
	cache  *cache

	mu            sync.RWMutex
	watcherActive bool
	lastList      *time.Time
	lastCount     int
	skipped       int
}

// NewPageDir validates config and returns the page directory. The directory
// is created unless MustExist is set.
func NewPageDir(config Config) (*PageDir, error) {
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(config.Pattern) {
		return nil, fmt.Errorf("invalid page pattern %q", config.Pattern)
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Serializers == nil {
		config.Serializers = DefaultSerializers()
	}

	info, err := os.Stat(config.Path)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("%s is not a directory", config.Path)
	case os.IsNotExist(err) && config.MustExist:
		return nil, fmt.Errorf("page directory %s does not exist: %w", config.Path, err)
	case os.IsNotExist(err):
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create page directory: %w", err)
		}
	case err != nil:
		return nil, err
	}

	d := &PageDir{
		Path:   config.Path,
		config: config,
		cache:  newCache(config.Path, config.SystemDir),
	}
	if !config.NoCache {
		if err := d.cache.Load(); err != nil {
			config.Logger.Debug("ignoring page cache", "error", err)
		}
	}
	return d, nil
}

// Pages lists the pages in id order. Files that do not parse or carry no
// positive id are skipped; of two files claiming one id the first path wins.
func (d *PageDir) Pages(ctx context.Context) ([]core.Page, error) {
	matches, err := doublestar.Glob(os.DirFS(d.Path), d.config.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	sort.Strings(matches)

	var (
		pages   []core.Page
		skipped int
	)
	seen := make(map[string]bool, len(matches))
	byID := make(map[int]string, len(matches))

	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.ignored(rel) {
			continue
		}
		p, err := d.load(rel)
		if err != nil {
			d.config.Logger.Debug("skipping page file", "path", rel, "error", err)
			skipped++
			continue
		}
		seen[rel] = true
		if first, dup := byID[p.ID]; dup {
			d.config.Logger.Warn("duplicate page id", "id", p.ID, "path", rel, "kept", first)
			skipped++
			continue
		}
		byID[p.ID] = rel
		pages = append(pages, p)
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })

	if !d.config.NoCache {
		d.cache.Prune(seen)
		if err := d.cache.Save(); err != nil {
			d.config.Logger.Debug("failed to save page cache", "error", err)
		}
	}

	now := time.Now()
	d.mu.Lock()
	d.lastList = &now
	d.lastCount = len(pages)
	d.skipped = skipped
	d.mu.Unlock()
	return pages, nil
}

func (d *PageDir) load(rel string) (core.Page, error) {
	full := filepath.Join(d.Path, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return core.Page{}, err
	}
	if !d.config.NoCache {
		if entry, hit := d.cache.Get(rel, info.ModTime()); hit {
			return entry.Page, nil
		}
	}

	s, ok := d.config.Serializers[strings.ToLower(path.Ext(rel))]
	if !ok {
		return core.Page{}, fmt.Errorf("no serializer for %s", path.Ext(rel))
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return core.Page{}, err
	}
	p, err := s.Parse(data)
	if err != nil {
		return core.Page{}, err
	}
	if p.ID <= 0 {
		return core.Page{}, errors.New("page has no positive id")
	}
	if p.Title == "" {
		p.Title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	if !d.config.NoCache {
		d.cache.Set(rel, &indexEntry{Page: p, LastModified: info.ModTime()})
	}
	return p, nil
}

// ignored reports whether rel lies in the system or VCS directory or is an
// in-flight atomic write.
func (d *PageDir) ignored(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	if first == d.config.SystemDir || first == ".git" {
		return true
	}
	return strings.HasPrefix(path.Base(rel), TempFilePrefix)
}

// WritePage stores p as a Markdown page file. A zero id is replaced by the
// next free one. The written page is returned.
func (d *PageDir) WritePage(ctx context.Context, p core.Page) (core.Page, error) {
	if p.ID < 0 {
		return p, fmt.Errorf("invalid page id %d", p.ID)
	}
	if p.ID == 0 {
		pages, err := d.Pages(ctx)
		if err != nil {
			return p, err
		}
		p.ID = 1
		if n := len(pages); n > 0 {
			p.ID = pages[n-1].ID + 1
		}
	}

	data, err := MarkdownSerializer{}.Serialize(p)
	if err != nil {
		return p, fmt.Errorf("failed to serialize page %d: %w", p.ID, err)
	}
	filename := filepath.Join(d.Path, fmt.Sprintf("%d.md", p.ID))
	if err := writeFileAtomic(filename, data, 0644); err != nil {
		return p, err
	}
	d.config.Logger.Debug("wrote page", "id", p.ID, "path", filename)
	return p, nil
}

// WatchPages signals, debounced, whenever a page file changes. The channel
// closes when ctx is done.
func (d *PageDir) WatchPages(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	w := newWatchWorker(d, out)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := w.Stop(stopCtx)
		close(out)
		return err
	}, lifecycle.WithErrorHandler(func(err error) {
		d.config.Logger.Debug("watcher stop", "error", err)
	}))
	return out, nil
}

var (
	_ core.PageSource  = (*PageDir)(nil)
	_ core.PageWatcher = (*PageDir)(nil)
)

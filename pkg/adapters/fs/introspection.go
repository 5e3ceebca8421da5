package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// PageDirState exposes internal state for observability.
type PageDirState struct {
	Path          string     `json:"path"`
	Pattern       string     `json:"pattern"`
	SystemDir     string     `json:"system_dir"`
	CacheSize     int        `json:"cache_size"`
	Serializers   []string   `json:"serializers"`
	WatcherActive bool       `json:"watcher_active"`
	Pages         int        `json:"pages"`
	Skipped       int        `json:"skipped"`
	LastList      *time.Time `json:"last_list,omitempty"`
}

// State implements introspection.Introspectable.
func (d *PageDir) State() any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	serializers := make([]string, 0, len(d.config.Serializers))
	for ext := range d.config.Serializers {
		serializers = append(serializers, ext)
	}

	return PageDirState{
		Path:          d.Path,
		Pattern:       d.config.Pattern,
		SystemDir:     d.config.SystemDir,
		CacheSize:     d.cache.Len(),
		Serializers:   serializers,
		WatcherActive: d.watcherActive,
		Pages:         d.lastCount,
		Skipped:       d.skipped,
		LastList:      d.lastList,
	}
}

// ComponentType implements introspection.Component.
func (d *PageDir) ComponentType() string {
	return "page-dir"
}

var _ introspection.Introspectable = (*PageDir)(nil)
var _ introspection.Component = (*PageDir)(nil)

func (d *PageDir) setWatcherActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watcherActive = active
}

package home

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// reloadSettle is how long the watcher waits after the last write before
// reloading, so editors that write in several steps trigger one reload.
const reloadSettle = 250 * time.Millisecond

// ConfigWatcher reloads the home configuration when its file changes.
type ConfigWatcher struct {
	path     string
	registry *automation.Registry
	logger   Logger
	settle   time.Duration
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, registry *automation.Registry, logger Logger) *ConfigWatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ConfigWatcher{path: path, registry: registry, logger: logger, settle: reloadSettle}
}

// Run watches until ctx is cancelled. A reload that fails to parse keeps
// the current configuration.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // best-effort close on shutdown

	// Watch the directory: editors often replace the file rather than
	// writing it in place.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	name := filepath.Clean(w.path)

	var (
		pending *time.Timer
		fire    = make(chan struct{}, 1)
	)
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	w.logger.Info("watching home config", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.settle, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := w.registry.LoadFile(w.path); err != nil {
				w.logger.Error("home config reload failed, keeping current config", "error", err)
				continue
			}
			w.logger.Info("home config reloaded", "version", w.registry.Version())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// WatchRemoteConfig replaces the home configuration with every document
// published to path on w. Empty payloads (cleared retained messages) and
// documents that fail to parse are ignored.
func WatchRemoteConfig(w mirror.Watcher, path string, registry *automation.Registry, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	return w.Watch(path, func(_ string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		if err := registry.Load(payload); err != nil {
			logger.Error("remote home config rejected, keeping current config", "path", path, "error", err)
			return
		}
		logger.Info("home config replaced from mirror", "path", path, "version", registry.Version())
	})
}

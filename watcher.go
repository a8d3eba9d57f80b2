package federation

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches a host config file and re-applies it on change,
// re-registering remotes with force so replaced descriptors evict their
// cached containers and prefetch entries.
type ConfigWatcher struct {
	host *StdHost
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher for a host config file. Start begins
// watching; Stop tears it down.
func NewConfigWatcher(host *StdHost, path string) *ConfigWatcher {
	return &ConfigWatcher{host: host, path: path}
}

// Start begins watching the config file's directory. Watching the
// directory rather than the file survives the rename-and-replace write
// pattern editors and deploy tools use.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return ErrWatcherAlreadyRunning
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	go w.run(ctx, watcher, w.done)
	w.host.logger.Info("Config watcher started", "path", w.path)
	return nil
}

func (w *ConfigWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.host.logger.Error("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *ConfigWatcher) reload(ctx context.Context) {
	cfg, err := LoadHostFileConfig(w.path)
	if err != nil {
		w.host.logger.Error("Config reload failed", "path", w.path, "error", err)
		return
	}
	if err := w.host.ApplyFileConfig(ctx, cfg, true); err != nil {
		w.host.logger.Error("Config re-apply failed", "path", w.path, "error", err)
		return
	}
	w.host.logger.Info("Config reloaded", "path", w.path, "remotes", len(cfg.Remotes))
	w.host.emitEvent(ctx, EventTypeConfigReloaded, map[string]any{
		"path":    w.path,
		"remotes": len(cfg.Remotes),
	})
}

// Stop tears down the watcher. Idempotent.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	w.watcher = nil
	w.done = nil
	return err
}

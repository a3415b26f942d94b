package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentrt/internal/logging"
)

const defaultReloadDebounce = 500 * time.Millisecond

// RuntimeConfigCache holds the last-loaded RuntimeConfig and notifies
// subscribers on Reload, mirroring the teacher's debounced config-reload
// shape adapted to this runtime's env-only configuration source.
type RuntimeConfigCache struct {
	mu      sync.RWMutex
	current RuntimeConfig
	updates chan struct{}
}

// NewRuntimeConfigCache creates a cache seeded with an initial load.
func NewRuntimeConfigCache() (*RuntimeConfigCache, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return &RuntimeConfigCache{current: cfg, updates: make(chan struct{}, 1)}, nil
}

// Get returns the currently cached config.
func (c *RuntimeConfigCache) Get() RuntimeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Reload re-reads configuration and swaps the cache, notifying any
// listener on Updates().
func (c *RuntimeConfigCache) Reload() error {
	cfg, err := Load()
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}
	c.mu.Lock()
	c.current = cfg
	c.mu.Unlock()

	select {
	case c.updates <- struct{}{}:
	default:
	}
	return nil
}

// Updates exposes a best-effort notification channel for reloads.
func (c *RuntimeConfigCache) Updates() <-chan struct{} { return c.updates }

// RuntimeConfigWatcher watches an on-disk file (e.g. a .env or override
// file) for changes and debounces Reload calls against cache (spec.md
// §4.Q reload_config).
type RuntimeConfigWatcher struct {
	path     string
	cache    *RuntimeConfigCache
	logger   logging.Logger
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRuntimeConfigWatcher creates a watcher for path, notifying cache on
// change.
func NewRuntimeConfigWatcher(path string, cache *RuntimeConfigCache, logger logging.Logger) (*RuntimeConfigWatcher, error) {
	if cache == nil {
		return nil, fmt.Errorf("config: cache required")
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	return &RuntimeConfigWatcher{
		path:     filepath.Clean(path),
		cache:    cache,
		logger:   logging.OrNop(logger),
		debounce: defaultReloadDebounce,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the parent directory of the configured path.
func (w *RuntimeConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsWatcher
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		w.mu.Lock()
		w.watcher = nil
		w.mu.Unlock()
		return err
	}

	go w.watchLoop()
	if ctx != nil {
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
	}
	return nil
}

// Stop terminates the watcher.
func (w *RuntimeConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
		w.mu.Unlock()
	})
}

func (w *RuntimeConfigWatcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config: watcher error: %v", err)
		}
	}
}

func (w *RuntimeConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.scheduleReload()
}

func (w *RuntimeConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		if err := w.cache.Reload(); err != nil {
			w.logger.Warn("config: reload failed: %v", err)
		}
	})
}

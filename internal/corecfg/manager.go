package corecfg

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the resolved CoreConfig behind an atomic pointer and
// optionally watches one file (the server passes its override file) for
// hot-reload, exactly like the
// teacher's internal/config.Manager: fsnotify watch, 500ms debounce,
// atomic swap, reload counter.
type Manager struct {
	config      atomic.Pointer[CoreConfig]
	keyFilePath string
	watcher     *fsnotify.Watcher
	onReload    []func(*CoreConfig)
	logger      *slog.Logger
	reloadCount atomic.Uint64

	resolveFn func() (*CoreConfig, error)
}

// NewManager resolves an initial CoreConfig via resolveFn and stores it.
func NewManager(resolveFn func() (*CoreConfig, error), keyFilePath string, logger *slog.Logger) (*Manager, error) {
	cfg, err := resolveFn()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		keyFilePath: keyFilePath,
		logger:      logger,
		resolveFn:   resolveFn,
	}
	m.config.Store(cfg)
	return m, nil
}

// Get returns the current configuration. Safe for concurrent callers.
func (m *Manager) Get() *CoreConfig {
	return m.config.Load()
}

// OnReload registers a callback invoked after ReloadKeys succeeds.
func (m *Manager) OnReload(fn func(*CoreConfig)) {
	m.onReload = append(m.onReload, fn)
}

// ReloadKeys is the one exception spec §7 allows for a ConfigurationError at
// request time rather than startup: re-resolving after the watched file
// changes. It re-runs the full resolver (so validation still fails fast).
func (m *Manager) ReloadKeys() error {
	cfg, err := m.resolveFn()
	if err != nil {
		return err
	}
	m.config.Store(cfg)
	m.reloadCount.Add(1)
	for _, fn := range m.onReload {
		fn(cfg)
	}
	return nil
}

// ReloadCount returns how many times ReloadKeys has succeeded.
func (m *Manager) ReloadCount() uint64 {
	return m.reloadCount.Load()
}

// Watch starts watching the file passed to NewManager for changes,
// debounced 500ms.
func (m *Manager) Watch(ctx context.Context) error {
	if m.keyFilePath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.keyFilePath); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher
	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = m.watcher.Close()
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.ReloadKeys(); err != nil && m.logger != nil {
						m.logger.Error("failed to reload api keys, keeping current config", "error", err)
					}
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.logger != nil {
				m.logger.Error("config key-file watcher error", "error", err)
			}
		}
	}
}

// Close stops the file watcher, if any.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

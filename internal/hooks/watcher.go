package hooks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the currently loaded hooks manifest for a directory and
// keeps it live-reloaded as the underlying file changes.
type Manager struct {
	dir    string
	logger *slog.Logger

	current atomic.Pointer[Manifest]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager loads the hooks manifest (if any) found in dir and returns a
// Manager ready to watch it. dir is typically "~/.<app>" or a per-project
// equivalent.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{dir: dir, logger: logger.With("component", "hooks.watcher")}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	path := DiscoverPath(m.dir)
	if path == "" {
		m.current.Store(nil)
		return nil
	}
	manifest, err := Load(path)
	if err != nil {
		return err
	}
	m.current.Store(manifest)
	return nil
}

// Manifest returns the currently loaded manifest, or nil if none is present.
func (m *Manager) Manifest() *Manifest {
	return m.current.Load()
}

// Runner returns a Runner bound to the currently loaded manifest.
func (m *Manager) Runner() *Runner {
	return NewRunner(m.current.Load(), m.logger)
}

// Watch starts watching the hooks directory for changes, reloading the
// manifest on every create/write/rename event. Watch is idempotent; a
// second call is a no-op while a watch is already running.
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.Lock()
	if m.watcher != nil {
		m.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		m.mu.Unlock()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the watcher, if running.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	watcher := m.watcher
	m.cancel = nil
	m.watcher = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Close()
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.wg.Done()

	var debounce *time.Timer
	reload := func() {
		if err := m.reload(); err != nil {
			m.logger.Warn("hooks manifest reload failed", "error", err)
		} else {
			m.logger.Info("hooks manifest reloaded")
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("hooks watcher error", "error", err)
		}
	}
}

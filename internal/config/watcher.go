package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// configMapDataDir is the symlink swapped by Kubernetes when a mounted
// ConfigMap changes. The file itself sees no event in that case.
const configMapDataDir = "..data"

// ConfigCallback is called with every successfully reloaded configuration.
type ConfigCallback func(*Config)

// ErrorCallback is called when a reload fails. The previous configuration
// stays in effect.
type ErrorCallback func(error)

// Watcher watches the configuration file and hands each new valid
// revision to a callback.
type Watcher struct {
	path          string
	fs            *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration

	mu      sync.RWMutex
	last    *Config
	digest  [sha256.Size]byte
	running bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits for a burst of file
// events to settle.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the callback for rejected revisions.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		fs:            fsw,
		callback:      callback,
		debounceDelay: 100 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the current revision and watches the file's directory.
// Editors and ConfigMap mounts replace files by rename, so the directory
// is watched rather than the file.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := w.load(); err != nil {
		w.setRunning(false)
		return err
	}

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		w.setRunning(false)
		return err
	}

	w.logger.Info("watching configuration file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)
	return nil
}

func (w *Watcher) setRunning(running bool) {
	w.mu.Lock()
	w.running = running
	w.mu.Unlock()
}

// Stop stops watching. It is safe to call on a watcher that never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fs.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.fs.Close()
}

// GetLastConfig returns the last accepted revision.
func (w *Watcher) GetLastConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	debounce := time.NewTimer(w.debounceDelay)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.logger.Debug("configuration file event",
					observability.String("name", event.Name),
					observability.String("op", event.Op.String()),
				)
				debounce.Reset(w.debounceDelay)
			}

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("configuration watcher error", observability.Error(err))
			w.reportError(err)
		}
	}
}

// relevant reports whether event may have changed the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.path || filepath.Base(name) == configMapDataDir
}

func (w *Watcher) reload() {
	changed, err := w.load()
	if err != nil {
		w.logger.Error("configuration rejected, keeping current revision",
			observability.String("path", w.path),
			observability.Error(err),
		)
		w.reportError(err)
		return
	}
	if !changed {
		w.logger.Debug("configuration file touched without changes")
		return
	}

	w.logger.Info("configuration reloaded", observability.String("path", w.path))
	w.notify()
}

func (w *Watcher) reportError(err error) {
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

func (w *Watcher) notify() {
	if w.callback != nil {
		w.callback(w.GetLastConfig())
	}
}

// ForceReload reads and validates the file now and invokes the callback
// on success, even when the content is unchanged.
func (w *Watcher) ForceReload() error {
	if _, err := w.load(); err != nil {
		return err
	}
	w.notify()
	return nil
}

// load reads, defaults and validates the file. It reports whether the
// accepted content differs from the previous revision.
func (w *Watcher) load() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("failed to read config file %s: %w", w.path, err)
	}
	digest := sha256.Sum256(data)

	cfg, err := NewLoader().LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := w.last == nil || digest != w.digest
	w.last = cfg
	w.digest = digest
	return changed, nil
}

// Package watch notifies about changes to license candidate files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNothingToWatch is returned by Start when no parent directory of the
// watched files exists.
var ErrNothingToWatch = errors.New("no watchable directory")

// Option configures a Watcher.
type Option func(*Watcher)

const (
	// DefaultDebounce is used when no positive debounce is given.
	DefaultDebounce = 300 * time.Millisecond
	// MinDebounce is the shortest debounce a watcher runs with.
	MinDebounce = 10 * time.Millisecond
)

// WithDebounce sets how long a file must stay quiet before a change is
// reported. Non-positive values keep the default; positive values below
// MinDebounce are raised to it.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		switch {
		case d <= 0:
			w.debounce = DefaultDebounce
		case d < MinDebounce:
			w.debounce = MinDebounce
		default:
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher reports changes to a fixed set of files. It watches their
// directories, so files that do not exist yet are picked up on creation
// and atomic saves are seen.
type Watcher struct {
	files    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
	onChange func(changed []string)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a watcher for files. onChange receives the sorted paths that
// changed since the previous call.
func New(files []string, onChange func(changed []string), opts ...Option) *Watcher {
	w := &Watcher{
		files:    make(map[string]bool, len(files)),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		onChange: onChange,
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}
	for _, f := range files {
		w.files[filepath.Clean(f)] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Directories that do not exist are skipped.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("license watcher: create fsnotify: %w", err)
	}

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}

	watched := 0
	for dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			w.logger.Debug("license watcher: directory skipped", slog.String("dir", dir))
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("license watcher: cannot watch directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = fsw.Close()
		return ErrNothingToWatch
	}

	w.fsWatcher = fsw
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine to
// exit. It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if !w.files[path] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending[path] = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("license watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) processPending() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)
	w.logger.Debug("license files changed", slog.Any("paths", ready))
	w.onChange(ready)
}

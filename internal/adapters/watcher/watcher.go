package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Watcher = (*Watcher)(nil)

// DefaultDebounceWindow is the default time window for debouncing file events.
const DefaultDebounceWindow = 50 * time.Millisecond

// skippedDirectories are never descended into when watching recursively.
var skippedDirectories = map[string]bool{
	".git":         true,
	".jj":          true,
	"node_modules": true,
	"__pycache__":  true,
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceWindow overrides DefaultDebounceWindow.
func WithDebounceWindow(window time.Duration) Option {
	return func(w *Watcher) {
		w.window = window
	}
}

// Watcher implements ports.Watcher using fsnotify. Every watched root is
// watched recursively and directories created below it are added as they appear.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    ports.Logger
	window    time.Duration
	done      chan struct{}

	mu      sync.Mutex
	roots   map[string]struct{}
	stopped bool
}

// New creates a watcher that reports coalesced batches to handler.
func New(handler ports.ChangeHandler, logger ports.Logger, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create file watcher")
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		logger:    logger,
		window:    DefaultDebounceWindow,
		done:      make(chan struct{}),
		roots:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.window, handler)

	go w.processEvents()
	return w, nil
}

// Factory returns a ports.WatcherFactory building watchers with the given options.
func Factory(logger ports.Logger, opts ...Option) ports.WatcherFactory {
	return func(handler ports.ChangeHandler) (ports.Watcher, error) {
		return New(handler, logger, opts...)
	}
}

// Watch starts watching path and every directory below it.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return zerr.With(zerr.Wrap(domain.ErrWatcherStopped, "watch"), "path", path)
	}

	dirs, err := directories(path)
	if err != nil {
		return zerr.With(errors.Join(domain.ErrWatchFailed, err), "path", path)
	}
	for i, dir := range dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			w.releaseLocked(dirs[:i])
			return zerr.With(errors.Join(domain.ErrWatchFailed, err), "path", dir)
		}
	}

	w.roots[path] = struct{}{}
	w.logger.Debug("watching directory", "path", path, "directories", len(dirs))
	return nil
}

// Unwatch stops watching path and the directories below it that are not covered
// by another watched root. Unwatching a path that is not watched succeeds.
func (w *Watcher) Unwatch(path string) error {
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[path]; !ok || w.stopped {
		return nil
	}
	delete(w.roots, path)

	var errs error
	for _, dir := range w.fsWatcher.WatchList() {
		if !within(dir, path) || w.coveredLocked(dir) {
			continue
		}
		// The OS drops watches of deleted directories on its own.
		if err := w.fsWatcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			errs = errors.Join(errs, zerr.With(err, "path", dir))
		}
	}
	if errs != nil {
		return errors.Join(domain.ErrUnwatchFailed, errs)
	}
	return nil
}

// Flush delivers pending events synchronously.
func (w *Watcher) Flush() {
	w.debouncer.Flush()
}

// Stop closes the OS watcher, waits for the event loop to exit and drops
// undelivered events. Stopping twice is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	<-w.done
	w.debouncer.Discard()
	if err != nil {
		return zerr.Wrap(err, "failed to close file watcher")
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// A moved or deleted directory must lose its watches before the
			// create of its new name registers the same inode again.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.forgetMoved(event.Name)
			}
			if event.Has(fsnotify.Create) {
				w.watchCreated(event.Name)
			}
			w.debouncer.Add(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(zerr.Wrap(err, "file system watcher error"))
		}
	}
}

// watchCreated adds a newly created directory below a watched root.
func (w *Watcher) watchCreated(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skippedDirectories[info.Name()] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || !w.coveredLocked(path) {
		return
	}

	dirs, err := directories(path)
	if err != nil {
		return
	}
	for _, dir := range dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			w.logger.Error(zerr.With(errors.Join(domain.ErrWatchFailed, err), "path", dir))
		}
	}
}

// forgetMoved drops the watches of path and every directory below it. The
// OS keeps watching a renamed directory under its old name otherwise.
func (w *Watcher) forgetMoved(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	for _, dir := range w.fsWatcher.WatchList() {
		if !within(dir, path) {
			continue
		}
		if err := w.fsWatcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.logger.Debug("failed to drop watch of moved directory", "path", dir, "error", err)
		}
	}
}

// releaseLocked removes the watches of dirs that no recorded root covers.
func (w *Watcher) releaseLocked(dirs []string) {
	for _, dir := range dirs {
		if w.coveredLocked(dir) {
			continue
		}
		_ = w.fsWatcher.Remove(dir)
	}
}

func (w *Watcher) coveredLocked(path string) bool {
	for root := range w.roots {
		if within(path, root) {
			return true
		}
	}
	return false
}

// directories lists root and every directory below it, skipping well-known
// directories that never hold workspace sources.
func directories(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDirectories[d.Name()] {
			return fs.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		dirs = append(dirs, root)
	}
	return dirs, nil
}

func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

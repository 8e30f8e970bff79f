package ports

import "go.trai.ch/knot/internal/core/domain"

//go:generate mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks

// ChangeHandler receives a coalesced batch of change events.
type ChangeHandler func(events []domain.ChangeEvent)

// Watcher defines the interface for watching file system changes.
type Watcher interface {
	// Watch starts watching path and everything below it.
	Watch(path string) error
	// Unwatch stops watching path. Unwatching a path that is not watched succeeds.
	Unwatch(path string) error
	// Flush delivers pending events synchronously.
	Flush()
	// Stop stops the watcher and waits for its event loop to exit.
	Stop() error
}

// WatcherFactory creates a Watcher that reports batches to handler.
type WatcherFactory func(handler ChangeHandler) (Watcher, error)

// Package mainloop schedules checks against database snapshots, applies file
// changes and publishes only the results computed for the current revision.
package mainloop

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// queueCapacity bounds the message queue.
const queueCapacity = 10

// Checker analyses a snapshot and returns the lines to report.
// It returns db.ErrCancelled when the snapshot was invalidated mid-check.
type Checker interface {
	Check(ctx context.Context, snapshot *db.Snapshot) ([]string, error)
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context, snapshot *db.Snapshot) ([]string, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, snapshot *db.Snapshot) ([]string, error) {
	return f(ctx, snapshot)
}

// WatchPathSource computes the directories to watch for a snapshot.
type WatchPathSource interface {
	WatchPaths(snapshot *db.Snapshot) ([]domain.FilePath, error)
}

// Option configures a MainLoop.
type Option func(*MainLoop)

// WithWatchPaths sets the source of the watched directories in watch mode.
func WithWatchPaths(source WatchPathSource) Option {
	return func(l *MainLoop) {
		l.watchSource = source
	}
}

// WithMetrics dumps the counters of sources with every published result and on exit.
func WithMetrics(sources ...ports.CounterSource) Option {
	return func(l *MainLoop) {
		l.metrics = append(l.metrics, sources...)
	}
}

// MainLoop is the single coordinating loop. Only the loop goroutine mutates the
// database; checks run on worker goroutines against read-only snapshots.
type MainLoop struct {
	db          *db.Database
	checker     Checker
	reporter    ports.Reporter
	logger      ports.Logger
	tracer      ports.Tracer
	watchSource WatchPathSource
	metrics     []ports.CounterSource

	messages chan Message
	done     chan struct{}
	stopOnce sync.Once
	token    *CancellationToken

	// Owned by the loop goroutine.
	revision domain.Revision
	watcher  ports.Watcher
	watched  map[domain.FilePath]struct{}
}

// New creates a MainLoop.
func New(
	database *db.Database,
	checker Checker,
	reporter ports.Reporter,
	logger ports.Logger,
	tracer ports.Tracer,
	opts ...Option,
) *MainLoop {
	l := &MainLoop{
		db:       database,
		checker:  checker,
		reporter: reporter,
		logger:   logger,
		tracer:   tracer,
		messages: make(chan Message, queueCapacity),
		done:     make(chan struct{}),
		watched:  make(map[domain.FilePath]struct{}),
	}
	l.token = &CancellationToken{send: l.send}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CancellationToken returns the token that stops this loop.
func (l *MainLoop) CancellationToken() *CancellationToken {
	return l.token
}

// Run performs a single check, publishes it and returns.
func (l *MainLoop) Run(ctx context.Context) error {
	return l.run(ctx, false)
}

// Watch checks the workspace, then re-checks after every batch of changes until
// the context is done or the cancellation token is triggered.
func (l *MainLoop) Watch(ctx context.Context, factory ports.WatcherFactory) error {
	watcher, err := factory(func(events []domain.ChangeEvent) {
		l.send(ApplyChanges{Events: events})
	})
	if err != nil {
		return err
	}
	l.watcher = watcher
	defer func() {
		if err := watcher.Stop(); err != nil {
			l.logger.Error(err)
		}
	}()

	l.updateWatchedFolders()
	return l.run(ctx, true)
}

func (l *MainLoop) run(ctx context.Context, watchMode bool) error {
	ctx, cancel := context.WithCancel(ctx)
	var workers errgroup.Group
	defer func() {
		l.stopOnce.Do(func() { close(l.done) })
		cancel()
		_ = workers.Wait()
		if watchMode {
			l.dumpMetrics()
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			l.token.Cancel()
		case <-l.done:
		}
	}()

	l.enqueue(CheckWorkspace{})

	for {
		var msg Message
		select {
		case msg = <-l.messages:
		case <-l.done:
			return nil
		}

		switch m := msg.(type) {
		case CheckWorkspace:
			l.dispatchCheck(ctx, &workers)

		case CheckCompleted:
			l.handleCompleted(m)
			if !watchMode {
				return nil
			}

		case ApplyChanges:
			if len(m.Events) == 0 {
				continue
			}
			l.revision++
			l.logger.Debug("applying changes", "events", len(m.Events), "revision", uint64(l.revision))
			l.db.ApplyChanges(m.Events)
			l.updateWatchedFolders()
			l.enqueue(CheckWorkspace{})

		case Exit:
			l.logger.Debug("exiting main loop")
			return nil
		}
	}
}

func (l *MainLoop) dispatchCheck(ctx context.Context, workers *errgroup.Group) {
	snapshot := l.db.Snapshot()
	revision := l.revision
	l.logger.Debug("starting check", "revision", uint64(revision))

	workers.Go(func() error {
		spanCtx, span := l.tracer.Start(ctx, "check")
		span.SetAttribute("revision", uint64(revision))

		result, err := l.checker.Check(spanCtx, snapshot)
		// Released before queueing: ApplyChanges waits for open snapshots.
		snapshot.Close()

		if err != nil && !errors.Is(err, db.ErrCancelled) {
			span.RecordError(err)
		}
		span.End()

		l.send(CheckCompleted{Result: result, Revision: revision, Err: err})
		return nil
	})
}

func (l *MainLoop) handleCompleted(m CheckCompleted) {
	switch {
	case m.Revision != l.revision || errors.Is(m.Err, db.ErrCancelled):
		l.logger.Debug("discarding stale check result", "revision", uint64(m.Revision), "current", uint64(l.revision))
	case m.Err != nil:
		l.logger.Error(zerr.With(zerr.Wrap(m.Err, "check failed"), "revision", uint64(m.Revision)))
	default:
		l.reporter.Publish(m.Revision, m.Result)
		l.dumpMetrics()
	}
}

// updateWatchedFolders watches and unwatches the difference between the
// directories the workspace needs and the ones already registered.
func (l *MainLoop) updateWatchedFolders() {
	if l.watcher == nil || l.watchSource == nil {
		return
	}

	snapshot := l.db.Snapshot()
	paths, err := l.watchSource.WatchPaths(snapshot)
	snapshot.Close()
	if err != nil {
		l.logger.Error(zerr.Wrap(err, "failed to compute the watched directories"))
		return
	}

	desired := make(map[domain.FilePath]struct{}, len(paths))
	for _, p := range paths {
		if !p.Vendored {
			desired[p] = struct{}{}
		}
	}
	if maps.Equal(desired, l.watched) {
		return
	}

	for _, p := range sortedPaths(desired) {
		if _, ok := l.watched[p]; ok {
			continue
		}
		// Failed paths stay recorded so that they are not retried on every change.
		if err := l.watcher.Watch(p.Path); err != nil {
			l.logger.Error(zerr.With(err, "path", p.Path))
		}
	}
	for _, p := range sortedPaths(l.watched) {
		if _, ok := desired[p]; ok {
			continue
		}
		if err := l.watcher.Unwatch(p.Path); err != nil {
			l.logger.Info("failed to unwatch directory", "path", p.Path, "error", err)
		}
	}
	l.watched = desired
}

func (l *MainLoop) dumpMetrics() {
	if len(l.metrics) == 0 {
		return
	}
	var counters []domain.Counter
	for _, source := range l.metrics {
		counters = append(counters, source.Counters()...)
	}
	l.reporter.Metrics(counters)
}

// enqueue is used by the loop goroutine to post to its own queue without
// blocking on a full channel.
func (l *MainLoop) enqueue(msg Message) {
	select {
	case l.messages <- msg:
	default:
		go l.send(msg)
	}
}

// send posts msg unless the loop has exited.
func (l *MainLoop) send(msg Message) {
	select {
	case l.messages <- msg:
	case <-l.done:
	}
}

func sortedPaths(set map[domain.FilePath]struct{}) []domain.FilePath {
	return slices.SortedFunc(maps.Keys(set), func(a, b domain.FilePath) int {
		return cmp.Compare(a.Path, b.Path)
	})
}

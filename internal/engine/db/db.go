// Package db implements the incremental database: tracked filesystem inputs,
// memoized queries with dependency tracking, snapshots for concurrent readers
// and the exclusive change application that advances the revision.
package db

import (
	"io/fs"
	"sync"
	"sync/atomic"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCancelled is returned by queries while a write to the database is pending.
	// Holders of a snapshot should drop it and return.
	ErrCancelled = zerr.New("query cancelled by a pending database write")

	// ErrCycle is returned when a query transitively depends on itself.
	ErrCycle = zerr.New("query cycle detected")
)

// Database owns every tracked input and memoized query result.
type Database struct {
	system   ports.System
	vendored fs.FS
	settings domain.ProgramSettings
	logger   ports.Logger

	// rw is held shared by every open snapshot and exclusively by ApplyChanges.
	rw        sync.RWMutex
	cancelled atomic.Bool
	revision  atomic.Uint64

	mu     sync.Mutex
	inputs map[inputKey]*inputSlot
	memos  map[memoKey]*memo
	group  singleflight.Group

	stats stats
}

type stats struct {
	memoHits       atomic.Int64
	memoVerified   atomic.Int64
	memoExecutions atomic.Int64
	inputReads     atomic.Int64
	appliedEvents  atomic.Int64
}

// Option configures a Database.
type Option func(*Database)

// WithVendored sets the filesystem backing vendored paths.
func WithVendored(fsys fs.FS) Option {
	return func(d *Database) {
		d.vendored = fsys
	}
}

// WithLogger sets the logger used by the database and its queries.
func WithLogger(logger ports.Logger) Option {
	return func(d *Database) {
		d.logger = logger
	}
}

// New creates a database reading host files through system.
func New(system ports.System, settings domain.ProgramSettings, opts ...Option) *Database {
	d := &Database{
		system:   system,
		settings: settings,
		logger:   nopLogger{},
		inputs:   make(map[inputKey]*inputSlot),
		memos:    make(map[memoKey]*memo),
	}
	d.revision.Store(1)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Revision returns the current revision.
func (d *Database) Revision() domain.Revision {
	return domain.Revision(d.revision.Load())
}

// Settings returns the program settings the database was created with.
func (d *Database) Settings() domain.ProgramSettings {
	return d.settings
}

// Snapshot returns a read-only view of the current revision. It blocks while
// ApplyChanges is running. The snapshot must be closed.
func (d *Database) Snapshot() *Snapshot {
	d.rw.RLock()
	return &Snapshot{
		db:       d,
		revision: d.Revision(),
		release:  &sync.Once{},
	}
}

// ApplyChanges invalidates the inputs touched by events and advances the revision.
// Running queries observe ErrCancelled so that their snapshots are released; the
// call then waits for every open snapshot to be closed. An empty batch is a no-op.
func (d *Database) ApplyChanges(events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}

	d.cancelled.Store(true)
	d.rw.Lock()
	defer d.rw.Unlock()
	defer d.cancelled.Store(false)

	d.mu.Lock()
	dirtied := 0
	for _, event := range events {
		for _, path := range event.Paths() {
			dirtied += d.invalidatePath(domain.SystemPath(path))
		}
	}
	d.mu.Unlock()

	rev := d.revision.Add(1)
	d.stats.appliedEvents.Add(int64(len(events)))
	d.logger.Debug("applied changes", "events", len(events), "dirtied", dirtied, "revision", rev)
}

// invalidatePath marks every input at, beneath or above target for re-reading.
// Inputs above target are directories whose listing or existence may have changed.
// Callers must hold d.mu.
func (d *Database) invalidatePath(target domain.FilePath) int {
	n := 0
	for key, slot := range d.inputs {
		if key.path.Vendored {
			continue
		}
		if key.path.Within(target) || (key.kind != inputContent && target.Within(key.path)) {
			slot.markDirty()
			n++
		}
	}
	return n
}

// Counters implements ports.CounterSource.
func (d *Database) Counters() []domain.Counter {
	d.mu.Lock()
	inputs, memos := len(d.inputs), len(d.memos)
	d.mu.Unlock()

	return []domain.Counter{
		{Name: "db.revision", Value: int64(d.Revision())},
		{Name: "db.tracked_inputs", Value: int64(inputs)},
		{Name: "db.memoized_queries", Value: int64(memos)},
		{Name: "db.memo_hits", Value: d.stats.memoHits.Load()},
		{Name: "db.memo_verified", Value: d.stats.memoVerified.Load()},
		{Name: "db.memo_executions", Value: d.stats.memoExecutions.Load()},
		{Name: "db.input_reads", Value: d.stats.inputReads.Load()},
		{Name: "db.applied_events", Value: d.stats.appliedEvents.Load()},
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(error)          {}

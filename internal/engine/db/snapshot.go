package db

import (
	"sync"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
)

// Snapshot is a read-only view of the database at one revision. It may be used
// from several goroutines. ApplyChanges waits until every snapshot is closed.
type Snapshot struct {
	db       *Database
	revision domain.Revision
	// frame collects the dependencies of the query being computed; nil at the top level.
	frame   *frame
	release *sync.Once
}

type frame struct {
	key    memoKey
	parent *frame

	mu   sync.Mutex
	deps []dependency
	seen map[dependency]struct{}
}

func (f *frame) record(dep dependency) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[dep]; ok {
		return
	}
	f.seen[dep] = struct{}{}
	f.deps = append(f.deps, dep)
}

func (f *frame) dependencies() []dependency {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dependency, len(f.deps))
	copy(out, f.deps)
	return out
}

// Revision returns the revision this snapshot observes.
func (s *Snapshot) Revision() domain.Revision {
	return s.revision
}

// Settings returns the program settings of the database.
func (s *Snapshot) Settings() domain.ProgramSettings {
	return s.db.settings
}

// Logger returns the database logger for use inside queries.
func (s *Snapshot) Logger() ports.Logger {
	return s.db.logger
}

// Cancelled reports whether a write is waiting for this snapshot to be closed.
func (s *Snapshot) Cancelled() bool {
	return s.db.cancelled.Load()
}

// Close releases the snapshot. It is safe to call more than once.
// Views handed to query computations share the release of their parent.
func (s *Snapshot) Close() {
	if s.frame != nil {
		return
	}
	s.release.Do(s.db.rw.RUnlock)
}

// Metadata returns the tracked metadata of path.
func (s *Snapshot) Metadata(path domain.FilePath) (Metadata, error) {
	v, err := s.readInput(inputKey{kind: inputMetadata, path: path})
	m, _ := v.(Metadata)
	return m, err
}

// Content returns the tracked content of path. Missing or unreadable files are empty.
func (s *Snapshot) Content(path domain.FilePath) (string, error) {
	v, err := s.readInput(inputKey{kind: inputContent, path: path})
	c, _ := v.(string)
	return c, err
}

// ReadDir returns the tracked, name-sorted listing of a directory.
// Missing directories have no entries.
func (s *Snapshot) ReadDir(path domain.FilePath) ([]DirEntry, error) {
	v, err := s.readInput(inputKey{kind: inputDirectory, path: path})
	entries, _ := v.([]DirEntry)
	return entries, err
}

func (s *Snapshot) readInput(key inputKey) (any, error) {
	if s.db.cancelled.Load() {
		return nil, ErrCancelled
	}
	value, _ := s.db.input(key)
	if s.frame != nil {
		s.frame.record(dependency{isInput: true, input: key})
	}
	return value, nil
}

func (s *Snapshot) fetch(key memoKey, compute computeFunc, equal equalFunc) (any, error) {
	if s.db.cancelled.Load() {
		return nil, ErrCancelled
	}
	if s.onStack(key) {
		return nil, zerr.Wrap(ErrCycle, key.String())
	}
	value, _, err := s.db.memoValue(s, key, compute, equal)
	if err != nil {
		return nil, err
	}
	if s.frame != nil {
		s.frame.record(dependency{memo: key})
	}
	return value, nil
}

func (s *Snapshot) child(key memoKey) *Snapshot {
	return &Snapshot{
		db:       s.db,
		revision: s.revision,
		frame: &frame{
			key:    key,
			parent: s.frame,
			seen:   make(map[dependency]struct{}),
		},
		release: s.release,
	}
}

func (s *Snapshot) onStack(key memoKey) bool {
	for f := s.frame; f != nil; f = f.parent {
		if f.key == key {
			return true
		}
	}
	return false
}

package db

import (
	"fmt"
	"reflect"

	"go.trai.ch/knot/internal/core/domain"
)

type queryID struct {
	name string
}

type memoKey struct {
	query *queryID
	key   any
}

func (k memoKey) String() string {
	return fmt.Sprintf("%s(%v)", k.query.name, k.key)
}

// flightKey identifies the memo across queries that share a name.
func (k memoKey) flightKey() string {
	return fmt.Sprintf("%p/%s", k.query, k)
}

type dependency struct {
	isInput bool
	input   inputKey
	memo    memoKey
}

type computeFunc func(s *Snapshot) (any, error)

type equalFunc func(a, b any) bool

// memo is a memoized query result. Fields are guarded by Database.mu.
type memo struct {
	value      any
	verifiedAt domain.Revision
	changedAt  domain.Revision
	deps       []dependency
	compute    computeFunc
	equal      equalFunc
}

// Query is a memoized derived computation keyed by K.
// Results are reused while every input and query they read is unchanged.
type Query[K comparable, V any] struct {
	id      *queryID
	compute func(s *Snapshot, key K) (V, error)
	equal   func(a, b V) bool
}

// NewQuery declares a query. Queries are usually package level variables.
// A result that compares equal to the previous one keeps its changed-at
// revision so that dependents are not recomputed.
func NewQuery[K comparable, V any](name string, compute func(s *Snapshot, key K) (V, error)) *Query[K, V] {
	return &Query[K, V]{
		id:      &queryID{name: name},
		compute: compute,
		equal: func(a, b V) bool {
			return reflect.DeepEqual(a, b)
		},
	}
}

// WithEqual replaces the equality used to detect unchanged results.
func (q *Query[K, V]) WithEqual(equal func(a, b V) bool) *Query[K, V] {
	q.equal = equal
	return q
}

// Name returns the query name.
func (q *Query[K, V]) Name() string {
	return q.id.name
}

// Get returns the query result for key at the snapshot's revision.
// The only errors are ErrCancelled, ErrCycle and errors returned by the computation.
func (q *Query[K, V]) Get(s *Snapshot, key K) (V, error) {
	mk := memoKey{query: q.id, key: key}
	compute := func(child *Snapshot) (any, error) {
		return q.compute(child, key)
	}
	equal := func(a, b any) bool {
		av, _ := a.(V)
		bv, _ := b.(V)
		return q.equal(av, bv)
	}

	value, err := s.fetch(mk, compute, equal)
	if err != nil {
		var zero V
		return zero, err
	}
	typed, _ := value.(V)
	return typed, nil
}

// memoValue returns the memoized value for key, verifying or recomputing it
// when it was last verified at an older revision.
func (d *Database) memoValue(s *Snapshot, key memoKey, compute computeFunc, equal equalFunc) (any, domain.Revision, error) {
	d.mu.Lock()
	m := d.memos[key]
	if m != nil && m.verifiedAt == s.revision {
		value, changedAt := m.value, m.changedAt
		d.mu.Unlock()
		d.stats.memoHits.Add(1)
		return value, changedAt, nil
	}
	d.mu.Unlock()

	type result struct {
		value     any
		changedAt domain.Revision
	}
	res, err, _ := d.group.Do(key.flightKey(), func() (any, error) {
		value, changedAt, err := d.refresh(s, key, compute, equal)
		return result{value: value, changedAt: changedAt}, err
	})
	if err != nil {
		return nil, 0, err
	}
	r, _ := res.(result)
	return r.value, r.changedAt, nil
}

func (d *Database) refresh(s *Snapshot, key memoKey, compute computeFunc, equal equalFunc) (any, domain.Revision, error) {
	d.mu.Lock()
	old := d.memos[key]
	if old != nil && old.verifiedAt == s.revision {
		value, changedAt := old.value, old.changedAt
		d.mu.Unlock()
		d.stats.memoHits.Add(1)
		return value, changedAt, nil
	}
	d.mu.Unlock()

	if old != nil {
		unchanged, err := d.depsUnchanged(s, old)
		if err != nil {
			return nil, 0, err
		}
		if unchanged {
			d.mu.Lock()
			old.verifiedAt = s.revision
			value, changedAt := old.value, old.changedAt
			d.mu.Unlock()
			d.stats.memoVerified.Add(1)
			return value, changedAt, nil
		}
	}

	child := s.child(key)
	value, err := compute(child)
	if err != nil {
		return nil, 0, err
	}
	d.stats.memoExecutions.Add(1)

	changedAt := s.revision
	if old != nil && equal(old.value, value) {
		changedAt = old.changedAt
	}

	d.mu.Lock()
	d.memos[key] = &memo{
		value:      value,
		verifiedAt: s.revision,
		changedAt:  changedAt,
		deps:       child.frame.dependencies(),
		compute:    compute,
		equal:      equal,
	}
	d.mu.Unlock()
	return value, changedAt, nil
}

// depsUnchanged reports whether no dependency of m changed after m was last verified.
func (d *Database) depsUnchanged(s *Snapshot, m *memo) (bool, error) {
	d.mu.Lock()
	verifiedAt := m.verifiedAt
	deps := m.deps
	d.mu.Unlock()

	for _, dep := range deps {
		if d.cancelled.Load() {
			return false, ErrCancelled
		}
		var changedAt domain.Revision
		if dep.isInput {
			_, changedAt = d.input(dep.input)
		} else {
			var err error
			changedAt, err = d.memoChangedAt(s, dep.memo)
			if err != nil {
				return false, err
			}
		}
		if changedAt > verifiedAt {
			return false, nil
		}
	}
	return true, nil
}

func (d *Database) memoChangedAt(s *Snapshot, key memoKey) (domain.Revision, error) {
	d.mu.Lock()
	m := d.memos[key]
	d.mu.Unlock()
	if m == nil {
		return s.revision, nil
	}
	if s.onStack(key) {
		return 0, ErrCycle
	}
	_, changedAt, err := d.memoValue(s, key, m.compute, m.equal)
	return changedAt, err
}

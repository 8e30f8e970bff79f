package db_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knot/internal/adapters/system"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/engine/db"
	"golang.org/x/sync/errgroup"
)

func newDatabase(t *testing.T, files map[string]string) (*db.Database, *system.MemorySystem) {
	t.Helper()
	sys := system.NewMemorySystem("/ws")
	sys.WriteFiles(files)
	return db.New(sys, domain.ProgramSettings{
		TargetVersion: domain.DefaultPythonVersion,
		SearchPaths:   domain.SearchPathSettings{WorkspaceRoot: "/ws"},
	}), sys
}

func fstestFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

// countingQuery returns a query counting the lines of a file and a counter of its executions.
func countingQuery() (*db.Query[domain.FilePath, int], *atomic.Int64) {
	var executions atomic.Int64
	q := db.NewQuery("line_count", func(s *db.Snapshot, path domain.FilePath) (int, error) {
		executions.Add(1)
		content, err := s.Content(path)
		if err != nil {
			return 0, err
		}
		if content == "" {
			return 0, nil
		}
		return strings.Count(content, "\n") + 1, nil
	})
	return q, &executions
}

func get[K comparable, V any](t *testing.T, d *db.Database, q *db.Query[K, V], key K) V {
	t.Helper()
	snap := d.Snapshot()
	defer snap.Close()
	v, err := q.Get(snap, key)
	require.NoError(t, err)
	return v
}

func metadata(t *testing.T, d *db.Database, path string) db.Metadata {
	t.Helper()
	snap := d.Snapshot()
	defer snap.Close()
	m, err := snap.Metadata(domain.SystemPath(path))
	require.NoError(t, err)
	return m
}

func TestApplyChanges_RevisionMonotonicity(t *testing.T) {
	d, _ := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})

	start := d.Revision()

	d.ApplyChanges(nil)
	assert.Equal(t, start, d.Revision(), "empty batch must not advance the revision")

	d.ApplyChanges([]domain.ChangeEvent{})
	assert.Equal(t, start, d.Revision())

	d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})
	assert.Equal(t, start+1, d.Revision())

	d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/unknown.py"}})
	assert.Equal(t, start+2, d.Revision())
}

func TestQuery_PreciseInvalidation(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{
		"/ws/a.py": "x = 1",
		"/ws/b.py": "y = 1\nz = 2",
	})
	q, executions := countingQuery()
	a, b := domain.SystemPath("/ws/a.py"), domain.SystemPath("/ws/b.py")

	assert.Equal(t, 1, get(t, d, q, a))
	assert.Equal(t, 2, get(t, d, q, b))
	require.Equal(t, int64(2), executions.Load())

	sys.WriteFile("/ws/a.py", "x = 1\nx = 2\nx = 3")
	d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})

	assert.Equal(t, 2, get(t, d, q, b))
	assert.Equal(t, int64(2), executions.Load(), "b.py must not be recomputed")

	assert.Equal(t, 3, get(t, d, q, a))
	assert.Equal(t, int64(3), executions.Load())
}

func TestQuery_MemoHitWithinRevision(t *testing.T) {
	d, _ := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
	q, executions := countingQuery()
	a := domain.SystemPath("/ws/a.py")

	for range 3 {
		get(t, d, q, a)
	}
	assert.Equal(t, int64(1), executions.Load())
}

func TestQuery_UnchangedContentIsBackdated(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
	q, executions := countingQuery()
	a := domain.SystemPath("/ws/a.py")

	get(t, d, q, a)

	// Permissions change, content identical.
	require.NoError(t, sys.Chmod("/ws/a.py", 0o600))
	d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})

	get(t, d, q, a)
	assert.Equal(t, int64(1), executions.Load())
	assert.Equal(t, uint32(0o600), uint32(metadata(t, d, "/ws/a.py").Permissions))
}

func TestQuery_EqualResultStopsPropagation(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{"/ws/a.py": "x = 1\ny = 2"})
	lines, lineExecutions := countingQuery()

	var parityExecutions atomic.Int64
	parity := db.NewQuery("parity", func(s *db.Snapshot, path domain.FilePath) (bool, error) {
		parityExecutions.Add(1)
		n, err := lines.Get(s, path)
		return n%2 == 0, err
	})

	var reportExecutions atomic.Int64
	report := db.NewQuery("report", func(s *db.Snapshot, path domain.FilePath) (string, error) {
		reportExecutions.Add(1)
		even, err := parity.Get(s, path)
		if even {
			return "even", err
		}
		return "odd", err
	})

	a := domain.SystemPath("/ws/a.py")
	assert.Equal(t, "even", get(t, d, report, a))

	// Four lines: line count changes, parity does not.
	sys.WriteFile("/ws/a.py", "a\nb\nc\nd")
	d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})

	assert.Equal(t, "even", get(t, d, report, a))
	assert.Equal(t, int64(2), lineExecutions.Load())
	assert.Equal(t, int64(2), parityExecutions.Load())
	assert.Equal(t, int64(1), reportExecutions.Load(), "report reads an unchanged parity")
}

func TestApplyChanges_ModifiedThenDeletedOrderIndependent(t *testing.T) {
	for _, events := range [][]domain.ChangeEvent{
		{domain.Modified{Path: "/ws/a.py"}, domain.Deleted{Path: "/ws/a.py"}},
		{domain.Deleted{Path: "/ws/a.py"}, domain.Modified{Path: "/ws/a.py"}},
	} {
		d, sys := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
		require.True(t, metadata(t, d, "/ws/a.py").Exists)

		sys.Remove("/ws/a.py")
		d.ApplyChanges(events)

		assert.False(t, metadata(t, d, "/ws/a.py").Exists)
	}
}

func TestApplyChanges_Idempotent(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{"/ws/a.py": "x = 1", "/ws/b.py": "y"})
	q, executions := countingQuery()
	a := domain.SystemPath("/ws/a.py")
	get(t, d, q, a)

	sys.WriteFile("/ws/a.py", "x = 1\nx = 2")
	sys.Remove("/ws/b.py")
	batch := []domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}, domain.Deleted{Path: "/ws/b.py"}}

	d.ApplyChanges(batch)
	first := get(t, d, q, a)
	firstB := metadata(t, d, "/ws/b.py")

	d.ApplyChanges(batch)
	assert.Equal(t, first, get(t, d, q, a))
	assert.Equal(t, firstB, metadata(t, d, "/ws/b.py"))
	assert.Equal(t, int64(2), executions.Load(), "re-applying the batch reads identical inputs")
}

func TestApplyChanges_Rename(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{"/ws/sub/a.py": "x = 1"})
	require.True(t, metadata(t, d, "/ws/sub/a.py").Exists)
	require.False(t, metadata(t, d, "/ws/sub2/a.py").Exists)
	require.False(t, metadata(t, d, "/ws/sub2").Exists)

	require.NoError(t, sys.Rename("/ws/sub", "/ws/sub2"))
	d.ApplyChanges([]domain.ChangeEvent{domain.Renamed{From: "/ws/sub/a.py", To: "/ws/sub2/a.py"}})

	assert.False(t, metadata(t, d, "/ws/sub/a.py").Exists)
	assert.True(t, metadata(t, d, "/ws/sub2/a.py").Exists)
	assert.True(t, metadata(t, d, "/ws/sub2").IsDir, "ancestor metadata is refreshed")
}

func TestApplyChanges_DirectoryEventDirtiesDescendantsAndListing(t *testing.T) {
	d, sys := newDatabase(t, map[string]string{
		"/ws/pkg/__init__.py": "",
		"/ws/pkg/mod.py":      "x = 1",
	})
	require.True(t, metadata(t, d, "/ws/pkg/mod.py").Exists)

	listing := func() []string {
		snap := d.Snapshot()
		defer snap.Close()
		entries, err := snap.ReadDir(domain.SystemPath("/ws"))
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return names
	}
	assert.Equal(t, []string{"pkg"}, listing())

	sys.Remove("/ws/pkg")
	d.ApplyChanges([]domain.ChangeEvent{domain.Deleted{Path: "/ws/pkg"}})

	assert.False(t, metadata(t, d, "/ws/pkg/mod.py").Exists)
	assert.Empty(t, listing())
}

func TestSnapshot_CancelledByPendingWrite(t *testing.T) {
	d, _ := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
	q, _ := countingQuery()
	a := domain.SystemPath("/ws/a.py")

	snap := d.Snapshot()
	_, err := q.Get(snap, a)
	require.NoError(t, err)

	applied := make(chan struct{})
	go func() {
		d.ApplyChanges([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})
		close(applied)
	}()

	require.Eventually(t, snap.Cancelled, time.Second, time.Millisecond)

	_, err = q.Get(snap, domain.SystemPath("/ws/b.py"))
	require.ErrorIs(t, err, db.ErrCancelled)

	select {
	case <-applied:
		t.Fatal("ApplyChanges must wait for the open snapshot")
	default:
	}

	snap.Close()
	snap.Close()
	<-applied

	assert.False(t, snap.Cancelled())
}

func TestQuery_CycleDetected(t *testing.T) {
	d, _ := newDatabase(t, nil)

	var self *db.Query[string, int]
	self = db.NewQuery("self", func(s *db.Snapshot, key string) (int, error) {
		return self.Get(s, key)
	})

	snap := d.Snapshot()
	defer snap.Close()
	_, err := self.Get(snap, "x")
	require.ErrorIs(t, err, db.ErrCycle)
}

func TestQuery_ConcurrentGetsExecuteOnce(t *testing.T) {
	d, _ := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
	q, executions := countingQuery()
	a := domain.SystemPath("/ws/a.py")

	snap := d.Snapshot()
	defer snap.Close()

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			n, err := q.Get(snap, a)
			if err == nil && n != 1 {
				t.Errorf("unexpected line count %d", n)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), executions.Load())
}

func TestQuery_SameNameQueriesComputeIndependently(t *testing.T) {
	d, _ := newDatabase(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	slow := db.NewQuery("shared", func(*db.Snapshot, string) (string, error) {
		close(started)
		<-release
		return "slow", nil
	})
	fast := db.NewQuery("shared", func(*db.Snapshot, string) (string, error) {
		return "fast", nil
	})

	snap := d.Snapshot()
	defer snap.Close()

	slowResult := make(chan string, 1)
	go func() {
		v, _ := slow.Get(snap, "k")
		slowResult <- v
	}()
	<-started

	fastResult := make(chan string, 1)
	go func() {
		v, _ := fast.Get(snap, "k")
		fastResult <- v
	}()
	select {
	case v := <-fastResult:
		assert.Equal(t, "fast", v)
	case <-time.After(5 * time.Second):
		t.Fatal("query waited on a different query with the same name")
	}

	close(release)
	assert.Equal(t, "slow", <-slowResult)
}

func TestDatabase_Counters(t *testing.T) {
	d, _ := newDatabase(t, map[string]string{"/ws/a.py": "x = 1"})
	q, _ := countingQuery()
	get(t, d, q, domain.SystemPath("/ws/a.py"))
	get(t, d, q, domain.SystemPath("/ws/a.py"))

	counters := map[string]int64{}
	for _, c := range d.Counters() {
		counters[c.Name] = c.Value
	}
	assert.Equal(t, int64(1), counters["db.memo_executions"])
	assert.Equal(t, int64(1), counters["db.memo_hits"])
	assert.Equal(t, int64(1), counters["db.tracked_inputs"])
	assert.Equal(t, int64(1), counters["db.memoized_queries"])
}

func TestSnapshot_VendoredFiles(t *testing.T) {
	sys := system.NewMemorySystem("/ws")
	vendored := fstestFS(map[string]string{"stdlib/VERSIONS": "os: 3.0-\n"})
	d := db.New(sys, domain.ProgramSettings{}, db.WithVendored(vendored))

	snap := d.Snapshot()
	content, err := snap.Content(domain.VendoredPath("stdlib/VERSIONS"))
	snap.Close()
	require.NoError(t, err)
	assert.Equal(t, "os: 3.0-\n", content)

	// Host events never touch vendored inputs.
	d.ApplyChanges([]domain.ChangeEvent{domain.Deleted{Path: "/"}})

	snap = d.Snapshot()
	defer snap.Close()
	m, err := snap.Metadata(domain.VendoredPath("stdlib/VERSIONS"))
	require.NoError(t, err)
	assert.True(t, m.IsFile())
}

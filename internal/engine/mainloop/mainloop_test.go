package mainloop_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knot/internal/adapters/system"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/core/ports/mocks"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/knot/internal/engine/mainloop"
	"go.uber.org/mock/gomock"
)

type loopMocks struct {
	reporter *mocks.MockReporter
	logger   *mocks.MockLogger
	tracer   *mocks.MockTracer
	watcher  *mocks.MockWatcher
}

func setupLoopTest(t *testing.T) (*db.Database, loopMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := loopMocks{
		reporter: mocks.NewMockReporter(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
		tracer:   mocks.NewMockTracer(ctrl),
		watcher:  mocks.NewMockWatcher(ctrl),
	}

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(gomock.Any(), gomock.Any()).AnyTimes()
	m.tracer.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (context.Context, ports.Span) {
			return ctx, span
		},
	).AnyTimes()

	m.logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()

	sys := system.NewMemorySystem("/ws")
	sys.WriteFile("/ws/a.py", "x = 1")
	d := db.New(sys, domain.ProgramSettings{
		TargetVersion: domain.DefaultPythonVersion,
		SearchPaths:   domain.SearchPathSettings{WorkspaceRoot: "/ws"},
	})
	return d, m
}

// factoryFor returns a watcher factory handing out w and recording the handler.
func factoryFor(w ports.Watcher, handler *ports.ChangeHandler) ports.WatcherFactory {
	return func(h ports.ChangeHandler) (ports.Watcher, error) {
		*handler = h
		return w, nil
	}
}

// readLines is a checker that reads a.py through the snapshot.
func readLines(_ context.Context, s *db.Snapshot) ([]string, error) {
	content, err := s.Content(domain.SystemPath("/ws/a.py"))
	if err != nil {
		return nil, err
	}
	return []string{content}, nil
}

func TestMainLoop_RunPublishesOnceAndExits(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.reporter.EXPECT().Publish(domain.Revision(0), []string{"x = 1"}).Times(1)

		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer)
		require.NoError(t, loop.Run(t.Context()))
	})
}

func TestMainLoop_RunWithMetrics(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		gomock.InOrder(
			m.reporter.EXPECT().Publish(gomock.Any(), gomock.Any()),
			m.reporter.EXPECT().Metrics(gomock.Any()).Do(func(counters []domain.Counter) {
				assert.NotEmpty(t, counters)
			}),
		)

		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer,
			mainloop.WithMetrics(d))
		require.NoError(t, loop.Run(t.Context()))
	})
}

func TestMainLoop_CancelledResultIsDiscarded(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)

		checker := mainloop.CheckerFunc(func(context.Context, *db.Snapshot) ([]string, error) {
			return nil, db.ErrCancelled
		})
		loop := mainloop.New(d, checker, m.reporter, m.logger, m.tracer)
		require.NoError(t, loop.Run(t.Context()))
	})
}

func TestMainLoop_CheckErrorIsLogged(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		boom := errors.New("boom")
		m.logger.EXPECT().Error(gomock.Any()).Do(func(err error) {
			assert.ErrorIs(t, err, boom)
		})

		checker := mainloop.CheckerFunc(func(context.Context, *db.Snapshot) ([]string, error) {
			return nil, boom
		})
		loop := mainloop.New(d, checker, m.reporter, m.logger, m.tracer)
		require.NoError(t, loop.Run(t.Context()))
	})
}

func TestMainLoop_CancellationTokenExits(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)

		checker := mainloop.CheckerFunc(func(ctx context.Context, _ *db.Snapshot) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		loop := mainloop.New(d, checker, m.reporter, m.logger, m.tracer)

		errc := make(chan error, 1)
		go func() { errc <- loop.Run(t.Context()) }()

		synctest.Wait()
		loop.CancellationToken().Cancel()
		loop.CancellationToken().Cancel()

		require.NoError(t, <-errc)
	})
}

func TestMainLoop_ContextCancellationExits(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.reporter.EXPECT().Publish(gomock.Any(), gomock.Any())
		m.watcher.EXPECT().Stop().Return(nil)

		var handler ports.ChangeHandler
		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer)

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- loop.Watch(ctx, factoryFor(m.watcher, &handler)) }()

		synctest.Wait()
		cancel()
		require.NoError(t, <-errc)
	})
}

func TestMainLoop_StaleResultIsSuppressed(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.watcher.EXPECT().Stop().Return(nil)
		m.reporter.EXPECT().Publish(domain.Revision(1), []string{"second"}).Times(1)

		var calls atomic.Int32
		release := make(chan struct{})
		checker := mainloop.CheckerFunc(func(context.Context, *db.Snapshot) ([]string, error) {
			if calls.Add(1) == 1 {
				<-release
				return []string{"first"}, nil
			}
			return []string{"second"}, nil
		})

		var handler ports.ChangeHandler
		loop := mainloop.New(d, checker, m.reporter, m.logger, m.tracer)

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- loop.Watch(ctx, factoryFor(m.watcher, &handler)) }()

		// The first check is in flight and holds its snapshot.
		synctest.Wait()
		require.NotNil(t, handler)
		handler([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})
		close(release)

		synctest.Wait()
		assert.Equal(t, int32(2), calls.Load())

		cancel()
		require.NoError(t, <-errc)
	})
}

func TestMainLoop_ChangesRecheck(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.watcher.EXPECT().Stop().Return(nil)
		gomock.InOrder(
			m.reporter.EXPECT().Publish(domain.Revision(0), []string{"x = 1"}),
			m.reporter.EXPECT().Publish(domain.Revision(1), []string{"x = 2"}),
		)

		sys := system.NewMemorySystem("/ws")
		sys.WriteFile("/ws/a.py", "x = 1")
		d = db.New(sys, d.Settings())

		var handler ports.ChangeHandler
		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer)

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- loop.Watch(ctx, factoryFor(m.watcher, &handler)) }()

		synctest.Wait()
		sys.WriteFile("/ws/a.py", "x = 2")
		handler([]domain.ChangeEvent{domain.Modified{Path: "/ws/a.py"}})

		synctest.Wait()
		cancel()
		require.NoError(t, <-errc)
	})
}

func TestMainLoop_EmptyBatchKeepsRevision(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.watcher.EXPECT().Stop().Return(nil)
		m.reporter.EXPECT().Publish(domain.Revision(0), []string{"x = 1"})

		var handler ports.ChangeHandler
		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer)

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- loop.Watch(ctx, factoryFor(m.watcher, &handler)) }()

		synctest.Wait()
		handler(nil)
		handler([]domain.ChangeEvent{})

		synctest.Wait()
		cancel()
		require.NoError(t, <-errc)
		assert.Equal(t, domain.Revision(1), d.Revision())
	})
}

// sequenceSource returns the next set of watch paths on every call and repeats the last one.
type sequenceSource struct {
	mu    sync.Mutex
	calls int
	sets  [][]domain.FilePath
}

func (s *sequenceSource) WatchPaths(*db.Snapshot) ([]domain.FilePath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[min(s.calls, len(s.sets)-1)]
	s.calls++
	return set, nil
}

func TestMainLoop_UpdateWatchedFolders(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, m := setupLoopTest(t)
		m.reporter.EXPECT().Publish(gomock.Any(), gomock.Any()).AnyTimes()

		source := &sequenceSource{sets: [][]domain.FilePath{
			{domain.SystemPath("/a"), domain.SystemPath("/b"), domain.VendoredPath("stdlib")},
			{domain.SystemPath("/b"), domain.SystemPath("/c")},
		}}

		watchErr := errors.New("too many watches")
		gomock.InOrder(
			m.watcher.EXPECT().Watch("/a").Return(watchErr),
			m.watcher.EXPECT().Watch("/b").Return(nil),
			m.watcher.EXPECT().Watch("/c").Return(nil),
			m.watcher.EXPECT().Unwatch("/a").Return(errors.New("not watched")),
			m.watcher.EXPECT().Stop().Return(nil),
		)
		m.logger.EXPECT().Error(gomock.Any()).Do(func(err error) {
			assert.ErrorIs(t, err, watchErr)
		})
		m.logger.EXPECT().Info("failed to unwatch directory", gomock.Any())

		var handler ports.ChangeHandler
		loop := mainloop.New(d, mainloop.CheckerFunc(readLines), m.reporter, m.logger, m.tracer,
			mainloop.WithWatchPaths(source))

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- loop.Watch(ctx, factoryFor(m.watcher, &handler)) }()

		synctest.Wait()
		handler([]domain.ChangeEvent{domain.Created{Path: "/c"}})
		synctest.Wait()

		// Same set: no watcher calls.
		handler([]domain.ChangeEvent{domain.Modified{Path: "/c/x.py"}})
		synctest.Wait()

		cancel()
		require.NoError(t, <-errc)
	})
}

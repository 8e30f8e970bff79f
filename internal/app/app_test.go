package app_test

import (
	"context"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knot/internal/adapters/config"
	"go.trai.ch/knot/internal/adapters/system"
	"go.trai.ch/knot/internal/app"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type appMocks struct {
	logger   *mocks.MockLogger
	reporter *mocks.MockReporter
	counters *mocks.MockCounterSource
	watcher  *mocks.MockWatcher
}

func setupApp(t *testing.T, files map[string]string) (*app.App, appMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := appMocks{
		logger:   mocks.NewMockLogger(ctrl),
		reporter: mocks.NewMockReporter(ctrl),
		counters: mocks.NewMockCounterSource(ctrl),
		watcher:  mocks.NewMockWatcher(ctrl),
	}
	m.logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	m.logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(gomock.Any(), gomock.Any()).AnyTimes()
	tracer := mocks.NewMockTracer(ctrl)
	tracer.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (context.Context, ports.Span) {
			return ctx, span
		},
	).AnyTimes()

	sys := system.NewMemorySystem("/ws")
	sys.WriteFiles(files)

	watchers := func(ports.ChangeHandler) (ports.Watcher, error) {
		return m.watcher, nil
	}
	a := app.New(config.NewLoader(sys, m.logger), sys, m.logger, m.reporter, tracer, m.counters, watchers)
	return a, m
}

func TestApp_Check_PublishesDiagnostics(t *testing.T) {
	a, m := setupApp(t, map[string]string{
		"/ws/main.py":    "import os\nimport missing\nimport helpers\n",
		"/ws/helpers.py": "",
	})
	m.reporter.EXPECT().Publish(domain.Revision(0), []string{"main.py:2:8: Unresolved import 'missing'"})

	require.NoError(t, a.Check(context.Background(), app.CheckOptions{}))
}

func TestApp_Check_ConfigurationFile(t *testing.T) {
	files := map[string]string{
		"/ws/knot.yaml":    "target-version: \"3.10\"\nextra-paths: [lib]\n",
		"/ws/src/main.py":  "import extra\nimport tomllib\n",
		"/ws/lib/extra.py": "",
	}

	t.Run("file values", func(t *testing.T) {
		a, m := setupApp(t, files)
		m.reporter.EXPECT().Publish(domain.Revision(0), []string{"src/main.py:2:8: Unresolved import 'tomllib'"})

		require.NoError(t, a.Check(context.Background(), app.CheckOptions{CurrentDirectory: "src"}))
	})

	t.Run("flags override the file", func(t *testing.T) {
		a, m := setupApp(t, files)
		m.reporter.EXPECT().Publish(domain.Revision(0), []string{"src/main.py:1:8: Unresolved import 'extra'"})

		version := domain.PythonVersion{Major: 3, Minor: 12}
		require.NoError(t, a.Check(context.Background(), app.CheckOptions{
			TargetVersion:    &version,
			ExtraSearchPaths: []string{"/elsewhere"},
		}))
	})
}

func TestApp_Check_TraceVerbosityDumpsMetrics(t *testing.T) {
	a, m := setupApp(t, map[string]string{"/ws/main.py": ""})
	m.reporter.EXPECT().Publish(domain.Revision(0), []string{})
	m.counters.EXPECT().Counters().Return([]domain.Counter{{Name: "spans.check", Value: 1}})
	m.reporter.EXPECT().Metrics(gomock.Any()).Do(func(counters []domain.Counter) {
		assert.Contains(t, counters, domain.Counter{Name: "spans.check", Value: 1})
		assert.Contains(t, counters, domain.Counter{Name: "db.revision", Value: 1})
	})

	require.NoError(t, a.Check(context.Background(), app.CheckOptions{Verbosity: app.TraceVerbosity}))
}

func TestApp_Check_MissingWorkspace(t *testing.T) {
	a, _ := setupApp(t, nil)

	err := a.Check(context.Background(), app.CheckOptions{CurrentDirectory: "/missing"})
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestApp_Check_InvalidConfiguration(t *testing.T) {
	a, _ := setupApp(t, map[string]string{"/ws/knot.yaml": "packages: [\n"})

	err := a.Check(context.Background(), app.CheckOptions{})
	assert.ErrorIs(t, err, domain.ErrConfigParse)
}

func TestApp_Check_WatchUntilCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		a, m := setupApp(t, map[string]string{"/ws/main.py": ""})
		m.watcher.EXPECT().Watch("/ws").Return(nil)
		m.watcher.EXPECT().Stop().Return(nil)
		m.reporter.EXPECT().Publish(domain.Revision(0), []string{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- a.Check(ctx, app.CheckOptions{Watch: true})
		}()

		synctest.Wait()
		cancel()
		require.NoError(t, <-done)
	})
}

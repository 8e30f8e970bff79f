// Package app implements the application layer for knot.
package app

import (
	"context"
	"errors"
	"path/filepath"
	"slices"

	"go.trai.ch/knot/internal/adapters/checker"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/knot/internal/engine/mainloop"
	"go.trai.ch/knot/internal/engine/resolver"
	"go.trai.ch/knot/internal/engine/workspace"
	"go.trai.ch/zerr"
)

// TraceVerbosity is the -v count that adds a metrics dump to every result.
const TraceVerbosity = 3

// Config is the configuration source: it locates the configuration and
// re-decodes it whenever the file changes.
type Config interface {
	ports.ConfigLoader
	ports.ConfigDecoder
}

// App represents the main application logic.
type App struct {
	config   Config
	system   ports.System
	logger   ports.Logger
	reporter ports.Reporter
	tracer   ports.Tracer
	counters ports.CounterSource
	watchers ports.WatcherFactory
}

// New creates a new App instance.
func New(
	config Config,
	system ports.System,
	log ports.Logger,
	reporter ports.Reporter,
	tracer ports.Tracer,
	counters ports.CounterSource,
	watchers ports.WatcherFactory,
) *App {
	return &App{
		config:   config,
		system:   system,
		logger:   log,
		reporter: reporter,
		tracer:   tracer,
		counters: counters,
		watchers: watchers,
	}
}

// CheckOptions configuration for the Check method. Values set here override
// the configuration file.
type CheckOptions struct {
	// CurrentDirectory defaults to the process working directory.
	CurrentDirectory string
	CustomTypeshed   string
	ExtraSearchPaths []string
	SitePackages     []string
	// TargetVersion is nil when the flag was not given.
	TargetVersion *domain.PythonVersion
	Watch         bool
	Verbosity     int
}

// Check analyses the workspace once, or keeps re-checking it after every change
// when opts.Watch is set, until ctx is done.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	cwd := a.system.CurrentDirectory()
	if opts.CurrentDirectory != "" {
		cwd = absolute(cwd, opts.CurrentDirectory)
	}

	cfg, err := a.config.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	if err := a.requireDirectory(cfg.Root); err != nil {
		return err
	}

	settings := programSettings(cfg, cwd, opts)
	a.logger.Info("checking workspace",
		"root", cfg.Root,
		"target-version", settings.TargetVersion.String(),
		"watch", opts.Watch,
	)

	database := db.New(a.system, settings,
		db.WithVendored(resolver.VendoredTypeshed()),
		db.WithLogger(a.logger),
	)
	ws := workspace.New(cfg, a.config)

	loopOpts := []mainloop.Option{mainloop.WithWatchPaths(ws)}
	if opts.Verbosity >= TraceVerbosity {
		loopOpts = append(loopOpts, mainloop.WithMetrics(database, a.counters))
	}
	loop := mainloop.New(database, checker.New(ws, a.logger), a.reporter, a.logger, a.tracer, loopOpts...)

	if opts.Watch {
		return loop.Watch(ctx, a.watchers)
	}
	return loop.Run(ctx)
}

func (a *App) requireDirectory(root string) error {
	info, err := a.system.Stat(root)
	if err != nil {
		return zerr.With(errors.Join(domain.ErrWorkspaceNotFound, err), "path", root)
	}
	if !info.IsDir() {
		return zerr.With(zerr.Wrap(domain.ErrWorkspaceNotFound, "check workspace"), "path", root)
	}
	return nil
}

// programSettings merges the configuration file with the command line. Paths
// from the file are relative to the workspace root, paths from flags to cwd.
func programSettings(cfg *domain.WorkspaceConfig, cwd string, opts CheckOptions) domain.ProgramSettings {
	paths := domain.SearchPathSettings{
		WorkspaceRoot:  cfg.Root,
		ExtraPaths:     slices.Clone(cfg.ExtraPaths),
		CustomTypeshed: cfg.CustomTypeshed,
		SitePackages:   slices.Clone(cfg.SitePackages),
	}
	if len(opts.ExtraSearchPaths) > 0 {
		paths.ExtraPaths = absoluteAll(cwd, opts.ExtraSearchPaths)
	}
	if opts.CustomTypeshed != "" {
		paths.CustomTypeshed = absolute(cwd, opts.CustomTypeshed)
	}
	if len(opts.SitePackages) > 0 {
		paths.SitePackages = absoluteAll(cwd, opts.SitePackages)
	}

	version := domain.DefaultPythonVersion
	switch {
	case opts.TargetVersion != nil:
		version = *opts.TargetVersion
	case cfg.TargetVersion != nil:
		version = *cfg.TargetVersion
	}

	return domain.ProgramSettings{TargetVersion: version, SearchPaths: paths}
}

func absolute(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func absoluteAll(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, absolute(base, p))
	}
	return out
}

package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/adapters/reporter"  //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/adapters/system"    //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/knot/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			system.NodeID,
			logger.NodeID,
			reporter.NodeID,
			telemetry.TracerNodeID,
			telemetry.CounterNodeID,
			watcher.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.ControlNodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[*logger.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return &Components{App: app, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[*config.Loader](ctx)
	if err != nil {
		return nil, err
	}

	sys, err := graft.Dep[ports.System](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	rep, err := graft.Dep[ports.Reporter](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	counter, err := graft.Dep[*telemetry.SpanCounter](ctx)
	if err != nil {
		return nil, err
	}

	watchers, err := graft.Dep[ports.WatcherFactory](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, sys, log, rep, tracer, counter, watchers), nil
}

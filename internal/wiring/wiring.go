// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/knot/internal/adapters/config"
	_ "go.trai.ch/knot/internal/adapters/detector"
	_ "go.trai.ch/knot/internal/adapters/logger"
	_ "go.trai.ch/knot/internal/adapters/reporter"
	_ "go.trai.ch/knot/internal/adapters/system"
	_ "go.trai.ch/knot/internal/adapters/telemetry"
	_ "go.trai.ch/knot/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/knot/internal/app"
)

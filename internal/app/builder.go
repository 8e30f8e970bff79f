package app

import "go.trai.ch/knot/internal/adapters/logger"

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App *App
	// Logger is the concrete logger so the CLI can apply -v and --log-json.
	Logger *logger.Logger
}

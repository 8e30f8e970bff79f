package ports

import "go.trai.ch/knot/internal/core/domain"

//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks

// ConfigLoader locates and loads the workspace configuration.
type ConfigLoader interface {
	// Load searches cwd and its ancestors for a configuration file.
	// Without one, the returned configuration is rooted at cwd with defaults.
	Load(cwd string) (*domain.WorkspaceConfig, error)
}

// ConfigDecoder decodes configuration file content. It is used by the
// workspace queries so that edits to the file re-run package discovery.
type ConfigDecoder interface {
	Decode(path string, data []byte) (*domain.WorkspaceConfig, error)
}

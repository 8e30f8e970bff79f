// Package config discovers and decodes the workspace configuration.
package config

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var (
	_ ports.ConfigLoader  = (*Loader)(nil)
	_ ports.ConfigDecoder = (*Loader)(nil)
)

// Loader implements ports.ConfigLoader and ports.ConfigDecoder.
type Loader struct {
	system ports.System
	logger ports.Logger
}

// NewLoader creates a Loader reading files through system.
func NewLoader(system ports.System, logger ports.Logger) *Loader {
	return &Loader{system: system, logger: logger}
}

// Load searches cwd and its ancestors for knot.yaml or a pyproject.toml with a
// [tool.knot] table. knot.yaml wins when both are in the same directory.
// Without either, the configuration is rooted at cwd with default packages.
func (l *Loader) Load(cwd string) (*domain.WorkspaceConfig, error) {
	cwd = filepath.Clean(cwd)

	for dir := cwd; ; {
		cfg, err := l.loadFrom(dir)
		if err != nil || cfg != nil {
			return cfg, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	l.logger.Debug("no configuration file found", "cwd", cwd)
	return &domain.WorkspaceConfig{
		Root:     cwd,
		Packages: slices.Clone(domain.DefaultPackages),
	}, nil
}

func (l *Loader) loadFrom(dir string) (*domain.WorkspaceConfig, error) {
	path := filepath.Join(dir, domain.ConfigFileName)
	if l.isFile(path) {
		return l.read(path)
	}

	path = filepath.Join(dir, domain.PyprojectFileName)
	if !l.isFile(path) {
		return nil, nil
	}
	data, err := l.system.ReadFile(path)
	if err != nil {
		return nil, zerr.With(errors.Join(domain.ErrConfigRead, err), "path", path)
	}
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.With(errors.Join(domain.ErrConfigParse, err), "path", path)
	}
	if doc.Tool.Knot == nil {
		return nil, nil
	}
	l.logger.Debug("using configuration file", "path", path)
	return toConfig(path, doc.Tool.Knot), nil
}

func (l *Loader) read(path string) (*domain.WorkspaceConfig, error) {
	data, err := l.system.ReadFile(path)
	if err != nil {
		return nil, zerr.With(errors.Join(domain.ErrConfigRead, err), "path", path)
	}
	l.logger.Debug("using configuration file", "path", path)
	return l.Decode(path, data)
}

func (l *Loader) isFile(path string) bool {
	info, err := l.system.Stat(path)
	return err == nil && !info.IsDir()
}

// Decode decodes the content of a configuration file, choosing the format by
// file name. A pyproject.toml without a [tool.knot] table decodes to defaults.
func (l *Loader) Decode(path string, data []byte) (*domain.WorkspaceConfig, error) {
	var file File

	if filepath.Base(path) == domain.PyprojectFileName {
		var doc pyproject
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, zerr.With(errors.Join(domain.ErrConfigParse, err), "path", path)
		}
		if doc.Tool.Knot != nil {
			file = *doc.Tool.Knot
		}
		return toConfig(path, &file), nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, zerr.With(errors.Join(domain.ErrConfigParse, err), "path", path)
	}
	return toConfig(path, &file), nil
}

func toConfig(path string, file *File) *domain.WorkspaceConfig {
	packages := file.Packages
	if len(packages) == 0 {
		packages = slices.Clone(domain.DefaultPackages)
	}
	return &domain.WorkspaceConfig{
		Root:           filepath.Dir(path),
		File:           path,
		Packages:       packages,
		ExtraPaths:     file.ExtraPaths,
		CustomTypeshed: file.CustomTypeshed,
		SitePackages:   file.SitePackages,
		TargetVersion:  file.TargetVersion,
	}
}

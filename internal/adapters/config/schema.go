package config

import "go.trai.ch/knot/internal/core/domain"

// File is the structure of knot.yaml and of the [tool.knot] table in pyproject.toml.
type File struct {
	Packages       []string              `yaml:"packages" toml:"packages"`
	ExtraPaths     []string              `yaml:"extra-paths" toml:"extra-paths"`
	CustomTypeshed string                `yaml:"custom-typeshed-dir" toml:"custom-typeshed-dir"`
	SitePackages   []string              `yaml:"site-packages" toml:"site-packages"`
	TargetVersion  *domain.PythonVersion `yaml:"target-version" toml:"target-version"`
}

type pyproject struct {
	Tool struct {
		Knot *File `toml:"knot"`
	} `toml:"tool"`
}

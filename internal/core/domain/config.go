package domain

const (
	// ConfigFileName is the dedicated configuration file.
	ConfigFileName = "knot.yaml"
	// PyprojectFileName is read when it carries a [tool.knot] table.
	PyprojectFileName = "pyproject.toml"
)

// DefaultPackages is used when the configuration lists no packages.
var DefaultPackages = []string{"."}

// WorkspaceConfig is the decoded workspace configuration.
type WorkspaceConfig struct {
	// Root is the directory holding the configuration file, or the working directory.
	Root string
	// File is the configuration file path, empty when none was found.
	File string
	// Packages are glob patterns relative to Root.
	Packages []string
	// ExtraPaths are relative to Root unless absolute.
	ExtraPaths     []string
	CustomTypeshed string
	SitePackages   []string
	// TargetVersion is nil when unset.
	TargetVersion *PythonVersion
}

// Counter is one named value in a metrics dump.
type Counter struct {
	Name  string
	Value int64
}

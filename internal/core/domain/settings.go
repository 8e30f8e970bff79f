package domain

// Revision identifies a generation of the incremental database.
type Revision uint64

// SearchPathSettings are the user facing inputs that produce the ordered search paths.
type SearchPathSettings struct {
	// ExtraPaths are consulted before the workspace.
	ExtraPaths []string
	// WorkspaceRoot is the first-party root.
	WorkspaceRoot string
	// CustomTypeshed replaces the vendored stubs when set. It must contain stdlib/VERSIONS.
	CustomTypeshed string
	// SitePackages are consulted last.
	SitePackages []string
}

// ProgramSettings configure module resolution for one database.
type ProgramSettings struct {
	TargetVersion PythonVersion
	SearchPaths   SearchPathSettings
}

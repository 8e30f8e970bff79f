package domain

// ModuleKind distinguishes single-file modules from packages.
type ModuleKind uint8

const (
	// KindModule is a single .py or .pyi file.
	KindModule ModuleKind = iota
	// KindPackage is a directory with an __init__ file.
	KindPackage
)

func (k ModuleKind) String() string {
	if k == KindPackage {
		return "package"
	}
	return "module"
}

// Module is the result of resolving a dotted name.
type Module struct {
	Name       ModuleName
	Kind       ModuleKind
	SearchPath SearchPath
	// File is the backing source file, the __init__ file for packages.
	File FilePath
}

// Dir returns the package directory for packages and the containing directory otherwise.
func (m Module) Dir() FilePath {
	dir, _ := m.File.Parent()
	return dir
}

// IsStub reports whether the module is backed by a .pyi file.
func (m Module) IsStub() bool {
	return m.File.Ext() == ".pyi"
}

package domain

// SearchPathKind is the role a search path plays during module resolution.
// Values are ordered by precedence.
type SearchPathKind uint8

const (
	// SearchPathExtra is a user supplied extra path.
	SearchPathExtra SearchPathKind = iota
	// SearchPathFirstParty is the workspace root.
	SearchPathFirstParty
	// SearchPathStandardLibrary is the stdlib directory of a typeshed tree.
	SearchPathStandardLibrary
	// SearchPathSitePackages is an installed third-party package directory.
	SearchPathSitePackages
)

func (k SearchPathKind) String() string {
	switch k {
	case SearchPathExtra:
		return "extra"
	case SearchPathFirstParty:
		return "first-party"
	case SearchPathStandardLibrary:
		return "standard-library"
	case SearchPathSitePackages:
		return "site-packages"
	default:
		return "unknown"
	}
}

// SearchPath is one root consulted during module resolution.
type SearchPath struct {
	Kind SearchPathKind
	// Root is the directory modules are looked up in. For the standard library
	// it is the typeshed stdlib directory that also holds VERSIONS.
	Root FilePath
}

// AllowsNamespacePackages reports whether directories without __init__ may be traversed.
func (s SearchPath) AllowsNamespacePackages() bool {
	return s.Kind != SearchPathStandardLibrary
}

func (s SearchPath) String() string {
	return s.Kind.String() + "(" + s.Root.String() + ")"
}

// Package resolver maps dotted Python module names to files across the ordered
// search paths, gating standard library stubs by the target Python version.
//
// Every lookup goes through the incremental database, so a resolution is reused
// until one of the paths it inspected changes.
package resolver

import (
	"path"
	"strings"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/engine/db"
)

var resolveModuleQuery = db.NewQuery("resolve_module", resolveModule)

var fileToModuleQuery = db.NewQuery("file_to_module", fileToModule)

// ResolveModule returns the module implementing name, or nil when no search path provides it.
func ResolveModule(s *db.Snapshot, name domain.ModuleName) (*domain.Module, error) {
	return resolveModuleQuery.Get(s, name)
}

// FileToModule returns the module that file implements. It is nil when the file
// is outside every search path, is not a Python source file, or is shadowed by a
// module of the same name with higher precedence.
func FileToModule(s *db.Snapshot, file domain.FilePath) (*domain.Module, error) {
	return fileToModuleQuery.Get(s, file)
}

// parentKind describes the packages traversed before the last name component.
type parentKind uint8

const (
	parentRoot parentKind = iota
	parentRegular
	parentNamespace
)

func resolveModule(s *db.Snapshot, name domain.ModuleName) (*domain.Module, error) {
	searchPaths, err := SearchPaths(s)
	if err != nil {
		return nil, err
	}

	for _, sp := range searchPaths {
		r := rootResolver{s: s, searchPath: sp, target: s.Settings().TargetVersion}
		if sp.Kind == domain.SearchPathStandardLibrary {
			versions, err := TypeshedVersionsFor(s, sp.Root)
			if err != nil {
				return nil, err
			}
			if versions == nil {
				continue
			}
			r.versions = versions
		}

		module, parent, err := r.resolve(name)
		if err != nil {
			return nil, err
		}
		if module != nil {
			return module, nil
		}
		// All files of a regular package live in one place.
		if parent == parentRegular {
			return nil, nil
		}
	}
	return nil, nil
}

func fileToModule(s *db.Snapshot, file domain.FilePath) (*domain.Module, error) {
	searchPaths, err := SearchPaths(s)
	if err != nil {
		return nil, err
	}

	for _, sp := range searchPaths {
		rel, ok := file.RelativeTo(sp.Root)
		if !ok {
			continue
		}
		name, ok := moduleNameForRelativePath(rel)
		if !ok {
			continue
		}
		module, err := ResolveModule(s, name)
		if err != nil {
			return nil, err
		}
		if module == nil || module.File != file {
			return nil, nil
		}
		return module, nil
	}
	return nil, nil
}

func moduleNameForRelativePath(rel []string) (domain.ModuleName, bool) {
	if len(rel) == 0 {
		return domain.ModuleName{}, false
	}
	last := rel[len(rel)-1]
	ext := path.Ext(last)
	if ext != ".py" && ext != ".pyi" {
		return domain.ModuleName{}, false
	}
	components := append(rel[:len(rel)-1:len(rel)-1], strings.TrimSuffix(last, ext))
	if components[len(components)-1] == "__init__" {
		components = components[:len(components)-1]
	}
	if len(components) == 0 {
		return domain.ModuleName{}, false
	}
	return domain.ModuleNameFromComponents(components)
}

// rootResolver resolves names inside a single search path.
type rootResolver struct {
	s          *db.Snapshot
	searchPath domain.SearchPath
	// versions is set for the standard library only.
	versions *TypeshedVersions
	target   domain.PythonVersion
}

func (r *rootResolver) resolve(name domain.ModuleName) (*domain.Module, parentKind, error) {
	components := name.Components()
	dir := r.searchPath.Root
	inSubPackage, inNamespace := false, false

	for i, component := range components[:len(components)-1] {
		dir = dir.Join(component)
		prefix := components[:i+1]

		_, regular, err := r.resolveFile(dir.Join("__init__"), prefix)
		if err != nil {
			return nil, parentRoot, err
		}
		if regular {
			inNamespace = false
		} else {
			isDir, err := r.isDirectory(dir, prefix)
			if err != nil {
				return nil, parentRoot, err
			}
			if !isDir || !r.searchPath.AllowsNamespacePackages() {
				return nil, kindOf(inSubPackage, inNamespace), nil
			}
			inNamespace = true
		}
		inSubPackage = true
	}

	parent := kindOf(inSubPackage, inNamespace)
	last := dir.Join(components[len(components)-1])

	if file, ok, err := r.resolveFile(last.Join("__init__"), components); err != nil || ok {
		if err != nil {
			return nil, parent, err
		}
		return &domain.Module{Name: name, Kind: domain.KindPackage, SearchPath: r.searchPath, File: file}, parent, nil
	}

	file, ok, err := r.resolveFile(last, components)
	if err != nil {
		return nil, parent, err
	}
	if ok {
		return &domain.Module{Name: name, Kind: domain.KindModule, SearchPath: r.searchPath, File: file}, parent, nil
	}
	return nil, parent, nil
}

// resolveFile looks for stem.pyi, then stem.py. Typeshed only contains stubs.
func (r *rootResolver) resolveFile(stem domain.FilePath, module []string) (domain.FilePath, bool, error) {
	if !r.visible(module) {
		return domain.FilePath{}, false, nil
	}
	extensions := []string{".pyi", ".py"}
	if r.versions != nil {
		extensions = extensions[:1]
	}
	for _, ext := range extensions {
		candidate := domain.FilePath{Path: stem.Path + ext, Vendored: stem.Vendored}
		meta, err := r.s.Metadata(candidate)
		if err != nil {
			return domain.FilePath{}, false, err
		}
		if meta.IsFile() {
			return candidate, true, nil
		}
	}
	return domain.FilePath{}, false, nil
}

func (r *rootResolver) isDirectory(dir domain.FilePath, module []string) (bool, error) {
	if !r.visible(module) {
		return false, nil
	}
	return isDirectory(r.s, dir)
}

// visible applies the VERSIONS gate to standard library candidates.
func (r *rootResolver) visible(module []string) bool {
	if r.versions == nil {
		return true
	}
	name, ok := domain.ModuleNameFromComponents(module)
	if !ok {
		return false
	}
	return r.versions.Query(name, r.target) != ModuleDoesNotExist
}

func kindOf(inSubPackage, inNamespace bool) parentKind {
	switch {
	case inNamespace:
		return parentNamespace
	case inSubPackage:
		return parentRegular
	default:
		return parentRoot
	}
}

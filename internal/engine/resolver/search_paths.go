package resolver

import (
	"path/filepath"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/zerr"
)

var searchPathsQuery = db.NewQuery("search_paths", computeSearchPaths)

var typeshedVersionsQuery = db.NewQuery("typeshed_versions", computeTypeshedVersions)

// SearchPaths returns the search paths in resolution order: extra paths, the
// workspace root, the standard library stubs and finally site-packages.
func SearchPaths(s *db.Snapshot) ([]domain.SearchPath, error) {
	return searchPathsQuery.Get(s, struct{}{})
}

// TypeshedVersionsFor returns the parsed VERSIONS file of a stdlib root.
// It is nil when the file is missing or malformed; the problem is logged once.
func TypeshedVersionsFor(s *db.Snapshot, stdlib domain.FilePath) (*TypeshedVersions, error) {
	return typeshedVersionsQuery.Get(s, stdlib)
}

func computeSearchPaths(s *db.Snapshot, _ struct{}) ([]domain.SearchPath, error) {
	settings := s.Settings().SearchPaths
	workspaceRoot := settings.WorkspaceRoot

	var paths []domain.SearchPath

	for _, extra := range settings.ExtraPaths {
		root := absoluteTo(workspaceRoot, extra)
		ok, err := isDirectory(s, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.Logger().Warn("ignoring extra search path that is not a directory", "path", root.String())
			continue
		}
		paths = append(paths, domain.SearchPath{Kind: domain.SearchPathExtra, Root: root})
	}

	if workspaceRoot != "" {
		paths = append(paths, domain.SearchPath{
			Kind: domain.SearchPathFirstParty,
			Root: domain.SystemPath(workspaceRoot),
		})
	}

	stdlib := domain.VendoredPath("stdlib")
	if settings.CustomTypeshed != "" {
		stdlib = absoluteTo(workspaceRoot, settings.CustomTypeshed).Join("stdlib")
	}
	paths = append(paths, domain.SearchPath{Kind: domain.SearchPathStandardLibrary, Root: stdlib})

	for _, site := range settings.SitePackages {
		root := absoluteTo(workspaceRoot, site)
		ok, err := isDirectory(s, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.Logger().Warn("ignoring site-packages path that is not a directory", "path", root.String())
			continue
		}
		paths = append(paths, domain.SearchPath{Kind: domain.SearchPathSitePackages, Root: root})
	}

	return paths, nil
}

func computeTypeshedVersions(s *db.Snapshot, stdlib domain.FilePath) (*TypeshedVersions, error) {
	file := stdlib.Join("VERSIONS")
	meta, err := s.Metadata(file)
	if err != nil {
		return nil, err
	}
	if !meta.IsFile() {
		s.Logger().Error(zerr.With(zerr.Wrap(domain.ErrTypeshedVersionsMissing, "standard library modules will not resolve"), "path", file.String()))
		return nil, nil
	}

	content, err := s.Content(file)
	if err != nil {
		return nil, err
	}
	versions, parseErr := ParseTypeshedVersions(content)
	if parseErr != nil {
		s.Logger().Error(zerr.With(zerr.Wrap(parseErr, "standard library modules will not resolve"), "path", file.String()))
		return nil, nil
	}
	return versions, nil
}

func isDirectory(s *db.Snapshot, path domain.FilePath) (bool, error) {
	meta, err := s.Metadata(path)
	if err != nil {
		return false, err
	}
	return meta.IsDir, nil
}

func absoluteTo(root, path string) domain.FilePath {
	if filepath.IsAbs(path) || root == "" {
		return domain.SystemPath(path)
	}
	return domain.SystemPath(filepath.Join(root, path))
}

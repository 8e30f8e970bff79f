// Package workspace discovers the packages of a workspace and decides which
// files belong to them. Everything is derived from the incremental database, so
// editing the configuration or an ignore file re-runs discovery on the next check.
package workspace

import (
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/knot/internal/engine/resolver"
	"go.trai.ch/zerr"
)

// Package is a directory of the workspace whose Python files are checked together.
type Package struct {
	// Name is the root relative to the workspace, or the workspace directory name.
	Name string
	Root domain.FilePath
}

// Workspace is the analysed directory tree.
type Workspace struct {
	root       domain.FilePath
	configFile domain.FilePath
	hasConfig  bool
	decoder    ports.ConfigDecoder

	packages   *db.Query[struct{}, []Package]
	ignores    *db.Query[domain.FilePath, []ignoreRule]
	files      *db.Query[domain.FilePath, []domain.FilePath]
	watchPaths *db.Query[struct{}, []domain.FilePath]
}

// New creates a workspace rooted at the directory of cfg. The configuration file,
// when there is one, is re-decoded with decoder whenever it changes.
func New(cfg *domain.WorkspaceConfig, decoder ports.ConfigDecoder) *Workspace {
	w := &Workspace{
		root:    domain.SystemPath(cfg.Root),
		decoder: decoder,
	}
	if cfg.File != "" {
		w.configFile = domain.SystemPath(cfg.File)
		w.hasConfig = true
	}

	w.packages = db.NewQuery("workspace_packages", w.computePackages)
	w.ignores = db.NewQuery("ignore_rules", w.computeIgnoreRules).WithEqual(equalRules)
	w.files = db.NewQuery("package_files", w.computePackageFiles)
	w.watchPaths = db.NewQuery("watch_paths", w.computeWatchPaths)
	return w
}

// Root returns the workspace root directory.
func (w *Workspace) Root() domain.FilePath {
	return w.root
}

// Packages returns the discovered packages ordered by root.
func (w *Workspace) Packages(s *db.Snapshot) ([]Package, error) {
	return w.packages.Get(s, struct{}{})
}

// PackageFor returns the innermost package whose root contains path.
func (w *Workspace) PackageFor(s *db.Snapshot, path domain.FilePath) (*Package, error) {
	packages, err := w.Packages(s)
	if err != nil {
		return nil, err
	}
	var found *Package
	for i := range packages {
		if path.Within(packages[i].Root) {
			if found == nil || len(packages[i].Root.Path) > len(found.Root.Path) {
				found = &packages[i]
			}
		}
	}
	return found, nil
}

// ContainsFile reports whether path is a Python file that belongs to a package.
// Membership depends on the path and the ignore rules only, not on existence.
func (w *Workspace) ContainsFile(s *db.Snapshot, path domain.FilePath) (bool, error) {
	if !isPythonFile(path.Base()) {
		return false, nil
	}
	pkg, err := w.PackageFor(s, path)
	if err != nil || pkg == nil {
		return false, err
	}
	return w.included(s, path, false)
}

// PackageFiles returns the Python files of pkg, excluding nested packages.
func (w *Workspace) PackageFiles(s *db.Snapshot, pkg Package) ([]domain.FilePath, error) {
	return w.files.Get(s, pkg.Root)
}

// Files returns the Python files of every package, sorted.
func (w *Workspace) Files(s *db.Snapshot) ([]domain.FilePath, error) {
	packages, err := w.Packages(s)
	if err != nil {
		return nil, err
	}
	var all []domain.FilePath
	for _, pkg := range packages {
		files, err := w.PackageFiles(s, pkg)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}
	slices.SortFunc(all, compareFilePaths)
	return slices.Compact(all), nil
}

// WatchPaths returns the directories that must be watched: the workspace root,
// the package roots and the search paths on the host, without nested entries.
func (w *Workspace) WatchPaths(s *db.Snapshot) ([]domain.FilePath, error) {
	return w.watchPaths.Get(s, struct{}{})
}

func (w *Workspace) computePackages(s *db.Snapshot, _ struct{}) ([]Package, error) {
	patterns, err := w.packagePatterns(s)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.FilePath]struct{})
	var packages []Package
	for _, pattern := range patterns {
		roots, err := w.expandPattern(s, pattern)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidPackagePattern) {
				s.Logger().Error(err)
				continue
			}
			return nil, err
		}
		for _, root := range roots {
			if _, ok := seen[root]; ok {
				continue
			}
			seen[root] = struct{}{}
			packages = append(packages, Package{Name: w.packageName(root), Root: root})
		}
	}

	slices.SortFunc(packages, func(a, b Package) int {
		return compareFilePaths(a.Root, b.Root)
	})
	return packages, nil
}

func (w *Workspace) packagePatterns(s *db.Snapshot) ([]string, error) {
	if !w.hasConfig {
		return domain.DefaultPackages, nil
	}
	content, err := s.Content(w.configFile)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return domain.DefaultPackages, nil
	}
	cfg, err := w.decoder.Decode(w.configFile.Path, []byte(content))
	if err != nil {
		s.Logger().Error(zerr.Wrap(err, "using the default packages"))
		return domain.DefaultPackages, nil
	}
	if len(cfg.Packages) == 0 {
		return domain.DefaultPackages, nil
	}
	return cfg.Packages, nil
}

// expandPattern matches a slash separated glob against the directories below the root.
func (w *Workspace) expandPattern(s *db.Snapshot, pattern string) ([]domain.FilePath, error) {
	cleaned := path.Clean(strings.TrimSpace(pattern))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidPackagePattern, "must be relative to the workspace root"), "pattern", pattern)
	}

	candidates := []domain.FilePath{w.root}
	if cleaned != "." {
		for segment := range strings.SplitSeq(cleaned, "/") {
			next, err := w.expandSegment(s, candidates, segment, pattern)
			if err != nil {
				return nil, err
			}
			candidates = next
		}
	}

	var roots []domain.FilePath
	for _, candidate := range candidates {
		ok, err := w.included(s, candidate, true)
		if err != nil {
			return nil, err
		}
		if ok {
			roots = append(roots, candidate)
		}
	}
	return roots, nil
}

func (w *Workspace) expandSegment(s *db.Snapshot, dirs []domain.FilePath, segment, pattern string) ([]domain.FilePath, error) {
	var out []domain.FilePath

	if !strings.ContainsAny(segment, "*?[{") {
		for _, dir := range dirs {
			candidate := dir.Join(segment)
			meta, err := s.Metadata(candidate)
			if err != nil {
				return nil, err
			}
			if meta.IsDir {
				out = append(out, candidate)
			}
		}
		return out, nil
	}

	matcher, err := glob.Compile(segment)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidPackagePattern, err.Error()), "pattern", pattern)
	}
	for _, dir := range dirs {
		entries, err := s.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir && !isSkippedDirectory(entry.Name) && matcher.Match(entry.Name) {
				out = append(out, dir.Join(entry.Name))
			}
		}
	}
	return out, nil
}

func (w *Workspace) packageName(root domain.FilePath) string {
	components, _ := root.RelativeTo(w.root)
	if len(components) == 0 {
		return w.root.Base()
	}
	return strings.Join(components, "/")
}

func (w *Workspace) computeIgnoreRules(s *db.Snapshot, dir domain.FilePath) ([]ignoreRule, error) {
	var rules []ignoreRule
	for _, name := range IgnoreFileNames {
		content, err := s.Content(dir.Join(name))
		if err != nil {
			return nil, err
		}
		rules = append(rules, parseIgnoreRules(content)...)
	}
	return rules, nil
}

// matcherAbove collects the ignore rules of the workspace root and every
// directory between it and dir, dir excluded.
func (w *Workspace) matcherAbove(s *db.Snapshot, dir domain.FilePath) (ignoreMatcher, error) {
	var m ignoreMatcher
	components, ok := dir.RelativeTo(w.root)
	if !ok {
		return m, nil
	}
	current := w.root
	for _, component := range components {
		rules, err := w.ignores.Get(s, current)
		if err != nil {
			return m, err
		}
		m = m.with(current, rules)
		current = current.Join(component)
	}
	return m, nil
}

// included reports whether path and each directory above it, up to the
// workspace root, are neither skipped nor ignored.
func (w *Workspace) included(s *db.Snapshot, path domain.FilePath, isDir bool) (bool, error) {
	components, ok := path.RelativeTo(w.root)
	if !ok {
		return false, nil
	}

	var m ignoreMatcher
	current := w.root
	for i, component := range components {
		rules, err := w.ignores.Get(s, current)
		if err != nil {
			return false, err
		}
		m = m.with(current, rules)
		current = current.Join(component)

		last := i == len(components)-1
		componentIsDir := !last || isDir
		if componentIsDir && isSkippedDirectory(component) {
			return false, nil
		}
		if m.ignored(current, componentIsDir) {
			return false, nil
		}
	}
	return true, nil
}

func (w *Workspace) computePackageFiles(s *db.Snapshot, root domain.FilePath) ([]domain.FilePath, error) {
	packages, err := w.Packages(s)
	if err != nil {
		return nil, err
	}
	nested := make(map[domain.FilePath]struct{})
	for _, pkg := range packages {
		if pkg.Root != root {
			nested[pkg.Root] = struct{}{}
		}
	}

	m, err := w.matcherAbove(s, root)
	if err != nil {
		return nil, err
	}

	var files []domain.FilePath
	if err := w.collectFiles(s, root, m, nested, &files); err != nil {
		return nil, err
	}
	slices.SortFunc(files, compareFilePaths)
	return files, nil
}

func (w *Workspace) collectFiles(
	s *db.Snapshot,
	dir domain.FilePath,
	m ignoreMatcher,
	nested map[domain.FilePath]struct{},
	files *[]domain.FilePath,
) error {
	entries, err := s.ReadDir(dir)
	if err != nil {
		return err
	}
	rules, err := w.ignores.Get(s, dir)
	if err != nil {
		return err
	}
	m = m.with(dir, rules)

	for _, entry := range entries {
		child := dir.Join(entry.Name)
		if entry.IsDir {
			if _, ok := nested[child]; ok {
				continue
			}
			if isSkippedDirectory(entry.Name) || m.ignored(child, true) {
				continue
			}
			if err := w.collectFiles(s, child, m, nested, files); err != nil {
				return err
			}
			continue
		}
		if isPythonFile(entry.Name) && !m.ignored(child, false) {
			*files = append(*files, child)
		}
	}
	return nil
}

func (w *Workspace) computeWatchPaths(s *db.Snapshot, _ struct{}) ([]domain.FilePath, error) {
	candidates := []domain.FilePath{w.root}

	packages, err := w.Packages(s)
	if err != nil {
		return nil, err
	}
	for _, pkg := range packages {
		candidates = append(candidates, pkg.Root)
	}

	searchPaths, err := resolver.SearchPaths(s)
	if err != nil {
		return nil, err
	}
	for _, sp := range searchPaths {
		if !sp.Root.Vendored {
			candidates = append(candidates, sp.Root)
		}
	}

	slices.SortFunc(candidates, compareFilePaths)
	var paths []domain.FilePath
	for _, candidate := range candidates {
		nestedInKept := slices.ContainsFunc(paths, func(kept domain.FilePath) bool {
			return candidate.Within(kept)
		})
		if !nestedInKept {
			paths = append(paths, candidate)
		}
	}
	return paths, nil
}

func compareFilePaths(a, b domain.FilePath) int {
	return strings.Compare(a.Path, b.Path)
}

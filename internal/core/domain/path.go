package domain

import (
	"path"
	"path/filepath"
	"strings"
)

// FilePath identifies a file either on the host system or inside the vendored
// typeshed bundle. It is comparable and used as the key of tracked inputs.
type FilePath struct {
	// Path is an absolute, cleaned host path, or a slash separated path relative
	// to the vendored bundle root when Vendored is set.
	Path string
	// Vendored marks paths that live in the embedded typeshed bundle.
	Vendored bool
}

// SystemPath returns a cleaned host FilePath.
func SystemPath(p string) FilePath {
	return FilePath{Path: filepath.Clean(p)}
}

// VendoredPath returns a FilePath inside the embedded typeshed bundle.
func VendoredPath(p string) FilePath {
	return FilePath{Path: path.Clean(strings.TrimPrefix(p, "/")), Vendored: true}
}

// String returns the path as it is displayed to users.
func (p FilePath) String() string {
	if p.Vendored {
		return "vendored://" + p.Path
	}
	return p.Path
}

// Join appends path elements.
func (p FilePath) Join(elem ...string) FilePath {
	if p.Vendored {
		return FilePath{Path: path.Join(append([]string{p.Path}, elem...)...), Vendored: true}
	}
	return FilePath{Path: filepath.Join(append([]string{p.Path}, elem...)...)}
}

// Parent returns the containing directory. The second result is false for roots.
func (p FilePath) Parent() (FilePath, bool) {
	var dir string
	if p.Vendored {
		dir = path.Dir(p.Path)
	} else {
		dir = filepath.Dir(p.Path)
	}
	if dir == p.Path {
		return FilePath{}, false
	}
	return FilePath{Path: dir, Vendored: p.Vendored}, true
}

// Base returns the last element of the path.
func (p FilePath) Base() string {
	if p.Vendored {
		return path.Base(p.Path)
	}
	return filepath.Base(p.Path)
}

// Ext returns the file extension including the dot.
func (p FilePath) Ext() string {
	if p.Vendored {
		return path.Ext(p.Path)
	}
	return filepath.Ext(p.Path)
}

// Stem returns the base name without its extension.
func (p FilePath) Stem() string {
	return strings.TrimSuffix(p.Base(), p.Ext())
}

// Within reports whether p equals root or lies beneath it.
func (p FilePath) Within(root FilePath) bool {
	_, ok := p.RelativeTo(root)
	return ok
}

// RelativeTo returns the components of p below root.
// An empty slice means p equals root.
func (p FilePath) RelativeTo(root FilePath) ([]string, bool) {
	if p.Vendored != root.Vendored {
		return nil, false
	}
	if p.Path == root.Path {
		return []string{}, true
	}
	sep := string(filepath.Separator)
	if p.Vendored {
		sep = "/"
	}
	prefix := root.Path
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	if root.Vendored && root.Path == "." {
		return strings.Split(p.Path, sep), true
	}
	rest, ok := strings.CutPrefix(p.Path, prefix)
	if !ok || rest == "" {
		return nil, false
	}
	return strings.Split(rest, sep), true
}

// Package system implements ports.System for the host filesystem and for an
// in-memory tree used in tests.
package system

import (
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/knot/internal/core/ports"
)

var _ ports.System = (*OSSystem)(nil)

// OSSystem implements ports.System using the standard library.
type OSSystem struct {
	cwd string
}

// NewOSSystem creates an OSSystem rooted at cwd.
func NewOSSystem(cwd string) *OSSystem {
	return &OSSystem{cwd: filepath.Clean(cwd)}
}

// CurrentDirectory returns the working directory the system was created with.
func (o *OSSystem) CurrentDirectory() string {
	return o.cwd
}

// Stat returns file info for the given path.
func (o *OSSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile reads the entire file at path.
func (o *OSSystem) ReadFile(path string) ([]byte, error) {
	// #nosec G304 -- paths come from the workspace and configured search paths
	return os.ReadFile(path)
}

// ReadDir lists the entries of a directory.
func (o *OSSystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

package system

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.System = (*MemorySystem)(nil)

// MemorySystem is a mutable in-memory ports.System backed by fstest.MapFS.
// Paths are absolute host paths; directories are implied by the files below them
// unless created explicitly.
type MemorySystem struct {
	mu    sync.RWMutex
	cwd   string
	files fstest.MapFS
}

// NewMemorySystem creates an empty MemorySystem with the given working directory.
func NewMemorySystem(cwd string) *MemorySystem {
	m := &MemorySystem{
		cwd:   filepath.Clean(cwd),
		files: fstest.MapFS{},
	}
	m.files[toRelPath(m.cwd)] = &fstest.MapFile{Mode: fs.ModeDir | 0o755}
	return m
}

// CurrentDirectory returns the working directory.
func (m *MemorySystem) CurrentDirectory() string {
	return m.cwd
}

// Stat returns file info for the given path.
func (m *MemorySystem) Stat(path string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fs.Stat(m.files, toRelPath(path))
}

// ReadFile reads the entire file at path.
func (m *MemorySystem) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fs.ReadFile(m.files, toRelPath(path))
}

// ReadDir lists the entries of a directory.
func (m *MemorySystem) ReadDir(path string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fs.ReadDir(m.files, toRelPath(path))
}

// WriteFile creates or replaces a file. Parent directories are implied.
func (m *MemorySystem) WriteFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel := toRelPath(path)
	mode := fs.FileMode(0o644)
	if existing, ok := m.files[rel]; ok {
		mode = existing.Mode
	}
	m.files[rel] = &fstest.MapFile{
		Data:    []byte(content),
		Mode:    mode,
		ModTime: time.Now(),
	}
}

// WriteFiles writes every path to content pair.
func (m *MemorySystem) WriteFiles(files map[string]string) {
	for path, content := range files {
		m.WriteFile(path, content)
	}
}

// CreateDirectory creates an explicit, possibly empty, directory.
func (m *MemorySystem) CreateDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[toRelPath(path)] = &fstest.MapFile{Mode: fs.ModeDir | 0o755}
}

// Chmod changes the permission bits of a file.
func (m *MemorySystem) Chmod(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[toRelPath(path)]
	if !ok {
		return zerr.With(zerr.Wrap(domain.ErrFileNotFound, "chmod"), "path", path)
	}
	f.Mode = f.Mode.Type() | perm.Perm()
	return nil
}

// Remove deletes a file or a directory and everything below it.
func (m *MemorySystem) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel := toRelPath(path)
	for name := range m.files {
		if name == rel || strings.HasPrefix(name, rel+"/") {
			delete(m.files, name)
		}
	}
}

// Rename moves a file or a directory and everything below it.
func (m *MemorySystem) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, dst := toRelPath(from), toRelPath(to)
	moved := 0
	for name, f := range m.files {
		var target string
		switch {
		case name == src:
			target = dst
		case strings.HasPrefix(name, src+"/"):
			target = dst + strings.TrimPrefix(name, src)
		default:
			continue
		}
		delete(m.files, name)
		m.files[target] = f
		moved++
	}
	if moved == 0 {
		return zerr.With(zerr.Wrap(domain.ErrFileNotFound, "rename"), "path", from)
	}
	return nil
}

// toRelPath converts an absolute path to the slash separated, rootless form
// used by fstest.MapFS.
func toRelPath(path string) string {
	rel := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
	if rel == "" {
		return "."
	}
	return rel
}

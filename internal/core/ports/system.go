package ports

import "io/fs"

//go:generate mockgen -source=system.go -destination=mocks/mock_system.go -package=mocks

// System abstracts the host filesystem so that the database can be driven by
// an in-memory tree in tests.
type System interface {
	// CurrentDirectory returns the absolute working directory.
	CurrentDirectory() string
	// Stat returns file info for the given path, following symlinks.
	Stat(path string) (fs.FileInfo, error)
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)
}

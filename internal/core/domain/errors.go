package domain

import "go.trai.ch/zerr"

var (
	// ErrWorkspaceNotFound is returned when the workspace root does not exist or is not a directory.
	ErrWorkspaceNotFound = zerr.New("workspace root is not a directory")

	// ErrInvalidTargetVersion is returned when a Python version string cannot be parsed.
	ErrInvalidTargetVersion = zerr.New("invalid python version")

	// ErrInvalidModuleName is returned when a dotted module name has an empty or non-identifier component.
	ErrInvalidModuleName = zerr.New("invalid module name")

	// ErrConfigRead is returned when a configuration file exists but cannot be read.
	ErrConfigRead = zerr.New("failed to read configuration file")

	// ErrConfigParse is returned when a configuration file cannot be decoded.
	ErrConfigParse = zerr.New("failed to parse configuration file")

	// ErrInvalidPackagePattern is returned when a packages glob in the configuration is malformed.
	ErrInvalidPackagePattern = zerr.New("invalid package pattern")

	// ErrSearchPathNotDirectory is returned when a configured search path is not a directory.
	ErrSearchPathNotDirectory = zerr.New("search path is not a directory")

	// ErrTypeshedVersionsMissing is returned when a custom typeshed directory has no stdlib/VERSIONS file.
	ErrTypeshedVersionsMissing = zerr.New("custom typeshed directory has no stdlib/VERSIONS file")

	// ErrWatcherStopped is returned when a watch operation is attempted after Stop.
	ErrWatcherStopped = zerr.New("watcher is stopped")

	// ErrWatchFailed is returned when the operating system refuses to watch a path.
	ErrWatchFailed = zerr.New("failed to watch path")

	// ErrUnwatchFailed is returned when the operating system refuses to stop watching a path.
	ErrUnwatchFailed = zerr.New("failed to unwatch path")

	// ErrFileNotFound is returned by System implementations for paths that do not exist.
	ErrFileNotFound = zerr.New("file not found")

	// ErrNotAFile is returned when reading a directory as a file.
	ErrNotAFile = zerr.New("path is not a file")
)

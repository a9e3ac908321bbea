package ds

import (
	"io"
	"io/fs"
)

// FilesystemManager provides the filesystem access needed to normalize
// path-bearing file data. It abstracts file access to enable testing without
// touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file (not a directory, symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a resolved file for reading.
	Open(path *Path) (io.ReadCloser, error)
}

// Path represents a validated filesystem path with cached metadata.
// Path objects are created by FilesystemManager.Resolve.
type Path struct {
	absPath string
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, info fs.FileInfo) *Path {
	return &Path{absPath: absPath, info: info}
}

// String returns the absolute path as a string.
func (p *Path) String() string {
	return p.absPath
}

// Info returns the cached file info from when the path was resolved.
func (p *Path) Info() fs.FileInfo {
	return p.info
}

package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docstore-go/internal/ds"
)

// OSFilesystemManager is the real filesystem implementation of ds.FilesystemManager.
// The datastores use it to read path-bearing file data handed to WriteFile.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object. Only regular
// files are accepted; the path itself must not be a symlink.
func (m *OSFilesystemManager) Resolve(rawPath string) (*ds.Path, error) {
	if rawPath == "" {
		return nil, fmt.Errorf("empty path")
	}
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return nil, fmt.Errorf("directories not supported: %s", absPath)
	case mode&os.ModeSymlink != 0:
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return ds.NewPath(absPath, info), nil
}

// Open opens a resolved file for reading.
func (m *OSFilesystemManager) Open(path *ds.Path) (io.ReadCloser, error) {
	if info := path.Info(); info != nil && info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

var _ ds.FilesystemManager = (*OSFilesystemManager)(nil)

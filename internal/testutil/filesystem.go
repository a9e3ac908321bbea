package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"docstore-go/internal/ds"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
	opens int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem. Relative paths are made
// absolute against the working directory, as Resolve does.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.add(path, &MockFile{Content: content, Permissions: 0644, ModTime: time.Now()})
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.add(path, &MockFile{Permissions: 0755 | fs.ModeDir, ModTime: time.Now(), IsDirectory: true})
}

func (m *MockFilesystemManager) add(path string, f *MockFile) {
	abs, err := filepath.Abs(path)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[abs] = f
}

// Opens returns how many files have been opened.
func (m *MockFilesystemManager) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*ds.Path, error) {
	if rawPath == "" {
		return nil, fmt.Errorf("empty path")
	}
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	file, ok := m.files[absPath]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", absPath, fs.ErrNotExist)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("path is a directory: %s", absPath)
	}

	info := &mockFileInfo{
		name:    filepath.Base(absPath),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
	return ds.NewPath(absPath, info), nil
}

func (m *MockFilesystemManager) Open(path *ds.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path.String(), fs.ErrNotExist)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	m.opens++
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ ds.FilesystemManager = (*MockFilesystemManager)(nil)

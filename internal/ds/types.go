package ds

import (
	"path/filepath"
	"time"
)

// Backend is a named storage area within which file references are keyed.
type Backend string

const (
	BackendStash      Backend = "stash"
	BackendLogs       Backend = "logs"
	BackendAttachment Backend = "attachment"
	BackendImage      Backend = "image"
)

// Backends lists every known backend in a stable order.
var Backends = []Backend{BackendStash, BackendLogs, BackendAttachment, BackendImage}

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendStash, BackendLogs, BackendAttachment, BackendImage:
		return true
	}
	return false
}

// FileRef addresses a stored binary attachment by name.
type FileRef struct {
	Name string `json:"name"`
}

// DocMetaRef addresses a document-metadata record. DocFile optionally names
// the data file (in the stash backend) that belongs to the document.
type DocMetaRef struct {
	Fingerprint string   `json:"fingerprint"`
	DocFile     *FileRef `json:"docFile,omitempty"`
}

// FileMeta is caller-supplied metadata stored alongside a file.
type FileMeta map[string]string

// Clone returns a copy of m. A nil map clones to an empty one.
func (m FileMeta) Clone() FileMeta {
	out := make(FileMeta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FileDescriptor describes a stored file and where it can be retrieved.
type FileDescriptor struct {
	Backend    Backend   `json:"backend"`
	Ref        FileRef   `json:"ref"`
	URL        string    `json:"url"`
	Meta       FileMeta  `json:"meta"`
	Size       int64     `json:"size"`
	Hash       string    `json:"hash"` // hex BLAKE3 digest of the content
	ModifiedAt time.Time `json:"modifiedAt"`
}

// DeleteTarget is the outcome of deleting one stored object.
type DeleteTarget struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// DeleteResult is the outcome of Datastore.Delete. Paths are synthesized for
// display and are not guaranteed on-disk locations.
type DeleteResult struct {
	DocMetaFile DeleteTarget `json:"docMetaFile"`
	DataFile    DeleteTarget `json:"dataFile"`
}

// Directories are the working directories a datastore exposes.
type Directories struct {
	DataDir  string `json:"dataDir"`
	StashDir string `json:"stashDir"`
	FilesDir string `json:"filesDir"`
	LogsDir  string `json:"logsDir"`
}

// NewDirectories lays out the standard directories under root.
func NewDirectories(root string) Directories {
	return Directories{
		DataDir:  filepath.Join(root, "data"),
		StashDir: filepath.Join(root, "stash"),
		FilesDir: filepath.Join(root, "files"),
		LogsDir:  filepath.Join(root, "logs"),
	}
}

// ForBackend returns the directory holding files for backend b.
func (d Directories) ForBackend(b Backend) string {
	switch b {
	case BackendStash:
		return d.StashDir
	case BackendLogs:
		return d.LogsDir
	default:
		return filepath.Join(d.FilesDir, string(b))
	}
}

// All returns every directory in a stable order.
func (d Directories) All() []string {
	return []string{d.DataDir, d.StashDir, d.FilesDir, d.LogsDir}
}

// InitResult describes a started datastore.
type InitResult struct {
	Backend     string      `json:"backend"`
	SessionID   string      `json:"sessionID"`
	StartedAt   time.Time   `json:"startedAt"`
	Directories Directories `json:"directories"`
}

// Capabilities describes the guarantees a backend offers.
type Capabilities struct {
	// NetworkLayers lists where records live: "local", and "web" for mirrored backends.
	NetworkLayers []string `json:"networkLayers"`
	// Durable is true if committed records survive a process restart.
	Durable bool `json:"durable"`
	// Mirrored is true if committed means "pushed to a remote mirror".
	Mirrored bool `json:"mirrored"`
	// LiveUpdates is true if listeners receive change batches after their snapshot.
	LiveUpdates bool `json:"liveUpdates"`
}

// Overview summarizes a datastore's contents.
type Overview struct {
	Backend string    `json:"backend"`
	NrDocs  int       `json:"nrDocs"`
	Created time.Time `json:"created"`
}

package datastore

import (
	"context"
	"time"

	"docstore-go/internal/ds"
)

// docRecord is one stored document-metadata payload.
type docRecord struct {
	Fingerprint string
	Content     string
}

// fileRecord is one stored file. Content is left nil by StatFile.
type fileRecord struct {
	Backend    ds.Backend  `msgpack:"backend"`
	Name       string      `msgpack:"name"`
	Content    []byte      `msgpack:"content,omitempty"`
	Meta       ds.FileMeta `msgpack:"meta"`
	Size       int64       `msgpack:"size"`
	Hash       string      `msgpack:"hash"`
	ModifiedAt time.Time   `msgpack:"modified_at"`
}

// withoutContent returns a shallow copy with Content dropped.
func (r *fileRecord) withoutContent() *fileRecord {
	cp := *r
	cp.Content = nil
	return &cp
}

// recordStore abstracts the storage mechanics behind a Store.
// Concurrency is managed by the caller (Store.mu), so implementations
// do not need to be safe for concurrent writes.
type recordStore interface {
	// Open prepares backing storage. It is called by Init, possibly again
	// after Close.
	Open(ctx context.Context) error

	// Close releases what Open acquired.
	Close() error

	// PutDoc stores data under fingerprint. created reports whether the
	// fingerprint was new.
	PutDoc(ctx context.Context, fingerprint, data string) (created bool, err error)

	// GetDoc returns ok=false for unknown fingerprints.
	GetDoc(ctx context.Context, fingerprint string) (data string, ok bool, err error)

	// DeleteDoc reports whether a record was removed.
	DeleteDoc(ctx context.Context, fingerprint string) (bool, error)

	// ListDocs returns every record ordered by fingerprint.
	ListDocs(ctx context.Context) ([]docRecord, error)

	// PutFile stores rec, replacing any file with the same key.
	PutFile(ctx context.Context, rec *fileRecord) error

	// StatFile returns the record without content, or nil if unknown.
	StatFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error)

	// ReadFile returns ok=false for unknown files.
	ReadFile(ctx context.Context, backend ds.Backend, name string) (content []byte, ok bool, err error)

	// DeleteFile reports whether a file was removed.
	DeleteFile(ctx context.Context, backend ds.Backend, name string) (bool, error)

	// FileURL is the locator returned in file descriptors.
	FileURL(backend ds.Backend, name string) string
}

// mirror is a durability layer behind the local records. A write is
// committed once the mirror has accepted it.
type mirror interface {
	// Validate checks that the mirror is reachable and usable.
	Validate(ctx context.Context) error

	PushDoc(ctx context.Context, fingerprint, data string) error
	RemoveDoc(ctx context.Context, fingerprint string) error
	PushFile(ctx context.Context, rec *fileRecord) error
	RemoveFile(ctx context.Context, backend ds.Backend, name string) error
}

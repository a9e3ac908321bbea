package ds

import "context"

// Datastore is the storage contract shared by every backend (memory, disk,
// badger, sqlite, cloud). Callers depend only on this interface; concrete
// backends are selected at construction time.
//
// Document-metadata records are JSON payloads keyed by fingerprint. Files are
// opaque binary attachments keyed by backend and name.
type Datastore interface {
	// Init prepares backing storage and starts change notification.
	// It returns an *InitError if the backing storage is unreachable.
	// Failures that happen after Init are reported to errorListener.
	Init(ctx context.Context, errorListener ErrorListener) (*InitResult, error)

	// Stop releases the resources acquired by Init. Stop is idempotent.
	Stop() error

	// Directories returns the working directories exposed to collaborators.
	// They are reported even when the backend does not persist anything there.
	Directories() Directories

	// Capabilities describes what the backend guarantees.
	Capabilities() Capabilities

	// Contains reports whether a record exists for fingerprint.
	Contains(ctx context.Context, fingerprint string) (bool, error)

	// Write stores data under fingerprint, replacing any prior value.
	// Preconditions are checked before any storage is touched: a malformed
	// fingerprint fails with *InvalidKeyError and a payload that is not text
	// fails with *TypeMismatchError. On success the mutation (if non-nil) has
	// written and then committed resolved to true.
	Write(ctx context.Context, fingerprint string, data string, docInfo *DocInfo, mutation *Mutation) error

	// GetDocMeta returns the stored payload. ok is false for unknown fingerprints.
	GetDocMeta(ctx context.Context, fingerprint string) (data string, ok bool, err error)

	// GetDocMetaFiles enumerates every known fingerprint.
	GetDocMetaFiles(ctx context.Context) ([]DocMetaRef, error)

	// Delete removes the record for ref.Fingerprint and the data file it
	// references, if any. Deleting an absent record is not an error.
	Delete(ctx context.Context, ref DocMetaRef) (*DeleteResult, error)

	// WriteFile normalizes data to bytes and stores it under backend:ref.Name,
	// overwriting any previous content for that key.
	WriteFile(ctx context.Context, backend Backend, ref FileRef, data FileData, meta FileMeta) (*FileDescriptor, error)

	// GetFile returns the descriptor for a stored file, or nil if the key was
	// never written.
	GetFile(ctx context.Context, backend Backend, ref FileRef) (*FileDescriptor, error)

	// ReadFile returns the stored content. ok is false if the key was never written.
	ReadFile(ctx context.Context, backend Backend, ref FileRef) (content []byte, ok bool, err error)

	// ContainsFile reports whether a file exists for backend:ref.Name.
	ContainsFile(ctx context.Context, backend Backend, ref FileRef) (bool, error)

	// DeleteFile removes a file. Deleting an absent key is not an error.
	DeleteFile(ctx context.Context, backend Backend, ref FileRef) error

	// Snapshot delivers every committed record to listener as one batch and
	// then keeps the listener registered for subsequent change batches.
	Snapshot(ctx context.Context, listener DocMetaSnapshotListener) (*SnapshotResult, error)

	// AddDocMetaSnapshotEventListener registers listener for change batches
	// committed after the registration is processed. No catch-up is delivered.
	AddDocMetaSnapshotEventListener(listener DocMetaSnapshotListener) (*Subscription, error)

	// Overview summarizes the contents of the datastore.
	Overview(ctx context.Context) (*Overview, error)
}

// Package datastore implements ds.Datastore over interchangeable storage
// engines. Store holds the shared algorithm (validation, the commit
// protocol, snapshots and change notification); a recordStore supplies the
// storage mechanics and an optional mirror supplies remote durability.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"docstore-go/internal/ds"
	"docstore-go/internal/fs"
)

// Options carries the collaborators shared by every backend. Zero fields
// get defaults: the OS filesystem, the real clock, UUIDs and a NopLogger.
type Options struct {
	Directories ds.Directories
	Filesystem  ds.FilesystemManager
	Clock       ds.Clock
	IDs         ds.IDGenerator
	Logger      ds.Logger
	// Encryptor seals mirrored objects. Only the cloud backend uses it.
	Encryptor ds.Encryptor
}

func (o Options) withDefaults() Options {
	if o.Filesystem == nil {
		o.Filesystem = fs.NewOSFilesystemManager()
	}
	if o.Clock == nil {
		o.Clock = ds.RealClock{}
	}
	if o.IDs == nil {
		o.IDs = ds.UUIDGenerator{}
	}
	if o.Logger == nil {
		o.Logger = ds.NewNopLogger()
	}
	return o
}

// Store implements ds.Datastore using a pluggable recordStore for the
// storage mechanics.
//
// Write and Delete hold the commit lock exclusively from the local write
// until the change batch is queued. Reads and Snapshot share it, so a
// snapshot's cut line falls between two commits.
type Store struct {
	name    string
	records recordStore
	mirror  mirror
	caps    ds.Capabilities
	dirs    ds.Directories
	makeDir bool

	fsmgr  ds.FilesystemManager
	clock  ds.Clock
	ids    ds.IDGenerator
	logger ds.Logger

	mu            sync.RWMutex
	running       bool
	result        *ds.InitResult
	seq           uint64
	disp          *dispatcher
	errorListener ds.ErrorListener
}

var _ ds.Datastore = (*Store)(nil)

func newStore(name string, records recordStore, m mirror, caps ds.Capabilities, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		name:    name,
		records: records,
		mirror:  m,
		caps:    caps,
		dirs:    opts.Directories,
		fsmgr:   opts.Filesystem,
		clock:   opts.Clock,
		ids:     opts.IDs,
		logger:  opts.Logger,
	}
}

// Name returns the backend name, e.g. "memory".
func (s *Store) Name() string {
	return s.name
}

// Init prepares backing storage and starts change notification. Calling
// Init on a running store returns the existing result.
func (s *Store) Init(ctx context.Context, errorListener ds.ErrorListener) (*ds.InitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.result, nil
	}

	if s.makeDir {
		for _, dir := range s.dirs.All() {
			if dir == "" {
				return nil, &ds.InitError{Backend: s.name, Err: errors.New("working directories not configured")}
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, &ds.InitError{Backend: s.name, Err: fmt.Errorf("creating %s: %w", dir, err)}
			}
		}
	}
	if err := s.records.Open(ctx); err != nil {
		return nil, &ds.InitError{Backend: s.name, Err: err}
	}
	if s.mirror != nil {
		if err := s.mirror.Validate(ctx); err != nil {
			s.records.Close()
			return nil, &ds.InitError{Backend: s.name, Err: err}
		}
	}

	s.errorListener = errorListener
	s.disp = newDispatcher(s.reportError, s.logger)
	s.disp.start()
	s.running = true
	s.result = &ds.InitResult{
		Backend:     s.name,
		SessionID:   s.ids.New(),
		StartedAt:   s.clock.Now(),
		Directories: s.dirs,
	}

	s.logger.Info("datastore started", "backend", s.name, "session", s.result.SessionID)
	return s.result, nil
}

// Stop delivers already queued change batches and releases the backing
// storage. It is idempotent and must not be called from a listener.
func (s *Store) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	disp := s.disp
	s.disp = nil
	err := s.records.Close()
	s.mu.Unlock()

	disp.stop()
	s.logger.Info("datastore stopped", "backend", s.name)
	if err != nil {
		return fmt.Errorf("closing %s datastore: %w", s.name, err)
	}
	return nil
}

func (s *Store) Directories() ds.Directories {
	return s.dirs
}

func (s *Store) Capabilities() ds.Capabilities {
	return s.caps
}

// reportError forwards a post-init failure to the error listener. It runs
// on the delivery goroutine.
func (s *Store) reportError(err error) {
	if s.errorListener != nil {
		s.errorListener(err)
	}
}

// reportLocked queues err for the error listener. The caller holds the
// commit lock.
func (s *Store) reportLocked(err error) {
	s.disp.report(err)
}

// Document metadata

func (s *Store) Contains(ctx context.Context, fingerprint string) (bool, error) {
	_, ok, err := s.GetDocMeta(ctx, fingerprint)
	return ok, err
}

// Write stores data under fingerprint.
//
// The record is written locally (resolving written) and then pushed to the
// mirror, if any (resolving committed). A mirror failure rolls the local
// record back to its previous value, so readers and snapshots only ever
// see committed records.
func (s *Store) Write(ctx context.Context, fingerprint string, data string, docInfo *ds.DocInfo, mutation *ds.Mutation) error {
	if err := ds.ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	if !utf8.ValidString(data) {
		return &ds.TypeMismatchError{Field: "data", Want: "UTF-8 text", Got: "binary"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ds.ErrNotRunning
	}

	var previous string
	var existed bool
	if s.mirror != nil {
		var err error
		previous, existed, err = s.records.GetDoc(ctx, fingerprint)
		if err != nil {
			resolveCommitted(mutation, false)
			return fmt.Errorf("reading %s: %w", fingerprint, err)
		}
	}

	created, err := s.records.PutDoc(ctx, fingerprint, data)
	if err != nil {
		resolveCommitted(mutation, false)
		return fmt.Errorf("writing %s: %w", fingerprint, err)
	}
	resolveWritten(mutation, true)

	if s.mirror != nil {
		if err := s.mirror.PushDoc(ctx, fingerprint, data); err != nil {
			resolveCommitted(mutation, false)
			err = fmt.Errorf("mirroring %s: %w", fingerprint, err)
			s.rollbackDoc(ctx, fingerprint, previous, existed)
			s.logger.Error("write not committed", "fingerprint", fingerprint, "error", err)
			s.reportLocked(err)
			return err
		}
	}
	resolveCommitted(mutation, true)

	kind := ds.EventUpdated
	if created {
		kind = ds.EventCreated
	}
	if docInfo == nil {
		docInfo = ds.DocInfoFromPayload(data)
	}
	s.publishLocked(ds.DocMetaEvent{Fingerprint: fingerprint, DocMeta: data, DocInfo: docInfo, Kind: kind})
	s.logger.Debug("wrote doc meta", "fingerprint", fingerprint, "kind", kind)
	return nil
}

func (s *Store) rollbackDoc(ctx context.Context, fingerprint, previous string, existed bool) {
	var err error
	if existed {
		_, err = s.records.PutDoc(ctx, fingerprint, previous)
	} else {
		_, err = s.records.DeleteDoc(ctx, fingerprint)
	}
	if err != nil {
		err = fmt.Errorf("rolling back %s: %w", fingerprint, err)
		s.logger.Error("rollback failed", "fingerprint", fingerprint, "error", err)
		s.reportLocked(err)
	}
}

func (s *Store) GetDocMeta(ctx context.Context, fingerprint string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return "", false, ds.ErrNotRunning
	}
	if ds.ValidateFingerprint(fingerprint) != nil {
		return "", false, nil
	}

	data, ok, err := s.records.GetDoc(ctx, fingerprint)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", fingerprint, err)
	}
	return data, ok, nil
}

func (s *Store) GetDocMetaFiles(ctx context.Context) ([]ds.DocMetaRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}

	docs, err := s.records.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing doc meta: %w", err)
	}
	refs := make([]ds.DocMetaRef, len(docs))
	for i, d := range docs {
		refs[i] = ds.DocMetaRef{Fingerprint: d.Fingerprint}
	}
	return refs, nil
}

// Delete removes the record and, when ref names one, its data file in the
// stash backend. The data file is only touched if the record existed; both
// targets report deleted=true iff it did.
//
// The local delete is published before the mirror is updated. If the mirror
// then fails, Delete returns the result of the local delete together with
// the error.
func (s *Store) Delete(ctx context.Context, ref ds.DocMetaRef) (*ds.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}

	result := &ds.DeleteResult{
		DocMetaFile: ds.DeleteTarget{Path: ds.DocMetaPath(ref.Fingerprint)},
	}
	if ref.DocFile != nil {
		result.DataFile.Path = "/" + ref.DocFile.Name
	}
	if ds.ValidateFingerprint(ref.Fingerprint) != nil {
		return result, nil
	}
	if ref.DocFile != nil {
		if err := ds.ValidateFileRef(ds.BackendStash, *ref.DocFile); err != nil {
			return nil, err
		}
	}

	existed, err := s.records.DeleteDoc(ctx, ref.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("deleting %s: %w", ref.Fingerprint, err)
	}
	dataFile := existed && ref.DocFile != nil
	if dataFile {
		if _, err := s.records.DeleteFile(ctx, ds.BackendStash, ref.DocFile.Name); err != nil {
			err = fmt.Errorf("deleting data file %s: %w", ref.DocFile.Name, err)
			s.logger.Error("data file not deleted", "fingerprint", ref.Fingerprint, "error", err)
			s.reportLocked(err)
			dataFile = false
		}
	}

	result.DocMetaFile.Deleted = existed
	result.DataFile.Deleted = existed && (ref.DocFile == nil || dataFile)
	if existed {
		s.publishLocked(ds.DocMetaEvent{Fingerprint: ref.Fingerprint, Kind: ds.EventDeleted})
	}
	s.logger.Debug("deleted doc meta", "fingerprint", ref.Fingerprint, "existed", existed)

	if s.mirror != nil {
		// Removing an absent object succeeds, so a retried Delete clears a
		// mirror left behind by an earlier failure.
		if err := s.mirror.RemoveDoc(ctx, ref.Fingerprint); err != nil {
			return result, s.mirrorFailure(fmt.Errorf("removing mirrored %s: %w", ref.Fingerprint, err))
		}
		if dataFile {
			if err := s.mirror.RemoveFile(ctx, ds.BackendStash, ref.DocFile.Name); err != nil {
				return result, s.mirrorFailure(fmt.Errorf("removing mirrored data file %s: %w", ref.DocFile.Name, err))
			}
		}
	}
	return result, nil
}

func (s *Store) mirrorFailure(err error) error {
	s.logger.Error("mirror update failed", "error", err)
	s.reportLocked(err)
	return err
}

// Files

// WriteFile normalizes data to bytes and stores it with a BLAKE3 digest.
// Like Write, a mirror failure restores the previous local file.
func (s *Store) WriteFile(ctx context.Context, backend ds.Backend, ref ds.FileRef, data ds.FileData, meta ds.FileMeta) (*ds.FileDescriptor, error) {
	if err := ds.ValidateFileRef(backend, ref); err != nil {
		return nil, err
	}
	content, err := data.Bytes(s.fsmgr)
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(content)
	rec := &fileRecord{
		Backend:    backend,
		Name:       ref.Name,
		Content:    content,
		Meta:       meta.Clone(),
		Size:       int64(len(content)),
		Hash:       fmt.Sprintf("%x", sum),
		ModifiedAt: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}

	var previous *fileRecord
	if s.mirror != nil {
		if previous, err = s.loadFile(ctx, backend, ref.Name); err != nil {
			return nil, fmt.Errorf("reading file %s:%s: %w", backend, ref.Name, err)
		}
	}

	if err := s.records.PutFile(ctx, rec); err != nil {
		return nil, fmt.Errorf("writing file %s:%s: %w", backend, ref.Name, err)
	}
	if s.mirror != nil {
		if err := s.mirror.PushFile(ctx, rec); err != nil {
			err = s.mirrorFailure(fmt.Errorf("mirroring file %s:%s: %w", backend, ref.Name, err))
			s.rollbackFile(ctx, backend, ref.Name, previous)
			return nil, err
		}
	}

	s.logger.Debug("wrote file", "backend", backend, "name", ref.Name, "size", rec.Size)
	return s.descriptor(rec), nil
}

// loadFile returns the stored record with its content, or nil.
func (s *Store) loadFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error) {
	rec, err := s.records.StatFile(ctx, backend, name)
	if err != nil || rec == nil {
		return nil, err
	}
	content, ok, err := s.records.ReadFile(ctx, backend, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rec.Content = content
	return rec, nil
}

func (s *Store) rollbackFile(ctx context.Context, backend ds.Backend, name string, previous *fileRecord) {
	var err error
	if previous != nil {
		err = s.records.PutFile(ctx, previous)
	} else {
		_, err = s.records.DeleteFile(ctx, backend, name)
	}
	if err != nil {
		err = fmt.Errorf("rolling back file %s:%s: %w", backend, name, err)
		s.logger.Error("rollback failed", "backend", backend, "name", name, "error", err)
		s.reportLocked(err)
	}
}

func (s *Store) GetFile(ctx context.Context, backend ds.Backend, ref ds.FileRef) (*ds.FileDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}
	if ds.ValidateFileRef(backend, ref) != nil {
		return nil, nil
	}

	rec, err := s.records.StatFile(ctx, backend, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("reading file %s:%s: %w", backend, ref.Name, err)
	}
	if rec == nil {
		return nil, nil
	}
	return s.descriptor(rec), nil
}

func (s *Store) ReadFile(ctx context.Context, backend ds.Backend, ref ds.FileRef) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, false, ds.ErrNotRunning
	}
	if ds.ValidateFileRef(backend, ref) != nil {
		return nil, false, nil
	}

	content, ok, err := s.records.ReadFile(ctx, backend, ref.Name)
	if err != nil {
		return nil, false, fmt.Errorf("reading file %s:%s: %w", backend, ref.Name, err)
	}
	return content, ok, nil
}

func (s *Store) ContainsFile(ctx context.Context, backend ds.Backend, ref ds.FileRef) (bool, error) {
	desc, err := s.GetFile(ctx, backend, ref)
	return desc != nil, err
}

func (s *Store) DeleteFile(ctx context.Context, backend ds.Backend, ref ds.FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ds.ErrNotRunning
	}
	if ds.ValidateFileRef(backend, ref) != nil {
		return nil
	}

	if _, err := s.records.DeleteFile(ctx, backend, ref.Name); err != nil {
		return fmt.Errorf("deleting file %s:%s: %w", backend, ref.Name, err)
	}
	if s.mirror != nil {
		if err := s.mirror.RemoveFile(ctx, backend, ref.Name); err != nil {
			return s.mirrorFailure(fmt.Errorf("removing mirrored file %s:%s: %w", backend, ref.Name, err))
		}
	}
	s.logger.Debug("deleted file", "backend", backend, "name", ref.Name)
	return nil
}

func (s *Store) descriptor(rec *fileRecord) *ds.FileDescriptor {
	return &ds.FileDescriptor{
		Backend:    rec.Backend,
		Ref:        ds.FileRef{Name: rec.Name},
		URL:        s.records.FileURL(rec.Backend, rec.Name),
		Meta:       rec.Meta.Clone(),
		Size:       rec.Size,
		Hash:       rec.Hash,
		ModifiedAt: rec.ModifiedAt,
	}
}

// Snapshots

// Snapshot reads every record under the shared commit lock, queues the
// listener's registration behind every batch already committed, and then
// delivers the records as one initial batch. Change batches committed
// after the cut line follow once the initial batch has been delivered.
// If the initial delivery fails the listener is unregistered and the
// error returned.
func (s *Store) Snapshot(ctx context.Context, listener ds.DocMetaSnapshotListener) (*ds.SnapshotResult, error) {
	if listener == nil {
		return nil, errors.New("snapshot: nil listener")
	}

	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return nil, ds.ErrNotRunning
	}
	docs, err := s.records.ListDocs(ctx)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("snapshot: listing doc meta: %w", err)
	}
	seq := s.seq
	ready := make(chan struct{})
	_, sub, err := s.disp.subscribe(listener, ready)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	batch := &ds.SnapshotBatch{
		ID:      s.ids.New(),
		Seq:     seq,
		Initial: true,
		Events:  make([]ds.DocMetaEvent, len(docs)),
	}
	for i, d := range docs {
		batch.Events[i] = ds.DocMetaEvent{
			Fingerprint: d.Fingerprint,
			DocMeta:     d.Content,
			DocInfo:     ds.DocInfoFromPayload(d.Content),
			Kind:        ds.EventCreated,
		}
	}

	err = deliver(listener, batch)
	if err != nil {
		sub.Unsubscribe()
	}
	close(ready)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot delivered", "batch", batch.ID, "count", len(docs), "seq", seq)
	return &ds.SnapshotResult{Count: len(docs), Seq: seq, Subscription: sub}, nil
}

// AddDocMetaSnapshotEventListener registers listener for batches committed
// after the registration is queued.
func (s *Store) AddDocMetaSnapshotEventListener(listener ds.DocMetaSnapshotListener) (*ds.Subscription, error) {
	if listener == nil {
		return nil, errors.New("add listener: nil listener")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}

	_, sub, err := s.disp.subscribe(listener, nil)
	return sub, err
}

// publishLocked queues events as one change batch. The caller holds the commit
// lock exclusively.
func (s *Store) publishLocked(events ...ds.DocMetaEvent) {
	s.seq++
	s.disp.publish(&ds.SnapshotBatch{ID: s.ids.New(), Seq: s.seq, Events: events})
}

// Overview summarizes the store. Created is the earliest "added" time
// found in the stored docInfo objects, or the session start if none has one.
func (s *Store) Overview(ctx context.Context) (*ds.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, ds.ErrNotRunning
	}

	docs, err := s.records.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	created := s.result.StartedAt
	for _, d := range docs {
		info := ds.DocInfoFromPayload(d.Content)
		if info != nil && !info.Added.IsZero() && info.Added.Before(created) {
			created = info.Added
		}
	}
	return &ds.Overview{Backend: s.name, NrDocs: len(docs), Created: created}, nil
}

func resolveWritten(m *ds.Mutation, ok bool) {
	if m != nil {
		m.ResolveWritten(ok)
	}
}

func resolveCommitted(m *ds.Mutation, ok bool) {
	if m != nil {
		m.ResolveCommitted(ok)
	}
}

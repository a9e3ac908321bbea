package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"docstore-go/internal/config"
	"docstore-go/internal/datastore"
	"docstore-go/internal/ds"
	"docstore-go/internal/encryption"
	"docstore-go/internal/fs"
)

// DocstoreApp is the application layer between the CLI and the datastore.
// It constructs the datastore from config, starts it, exposes high-level
// operations that accept raw strings and paths, and stops it on Close.
type DocstoreApp struct {
	cfg       *config.Config
	store     ds.Datastore
	fsmgr     ds.FilesystemManager
	encryptor ds.Encryptor
	logger    *slog.Logger
	logFile   *os.File
	op        *Operation
	started   *ds.InitResult
}

// NewDocstoreApp creates a started DocstoreApp from the given config.
// operation identifies the CLI command being run (e.g. "PutDoc", "Restore").
// The caller must call Close when done.
func NewDocstoreApp(ctx context.Context, cfg *config.Config, operation string) (*DocstoreApp, error) {
	fsmgr := fs.NewOSFilesystemManager()

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := datastore.NewDatastoreFromConfig(ctx, cfg.Datastore, cfg.BaseDir, datastore.Options{
		Filesystem: fsmgr,
		Logger:     &slogAdapter{l: logger},
		Encryptor:  enc,
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating datastore: %w", err)
	}

	started, err := store.Init(ctx, func(err error) {
		logger.Error("datastore error", "error", err)
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting datastore: %w", err)
	}
	logger.Info("datastore started", "backend", started.Backend, "session", started.SessionID, "operation", operation)

	return &DocstoreApp{
		cfg:       cfg,
		store:     store,
		fsmgr:     fsmgr,
		encryptor: enc,
		logger:    logger,
		logFile:   logFile,
		op:        NewOperation(operation),
		started:   started,
	}, nil
}

// Datastore returns the running datastore.
func (a *DocstoreApp) Datastore() ds.Datastore {
	return a.store
}

// Started returns the result of the datastore's Init.
func (a *DocstoreApp) Started() *ds.InitResult {
	return a.started
}

// track records the outcome of the current operation and passes err through.
func (a *DocstoreApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// PutDoc stores data under fingerprint and waits until the write is committed.
func (a *DocstoreApp) PutDoc(ctx context.Context, fingerprint, data string) error {
	m := ds.NewMutation()
	if err := a.store.Write(ctx, fingerprint, data, nil, m); err != nil {
		return a.track(fmt.Errorf("writing %s: %w", fingerprint, err))
	}
	committed, err := m.Committed().Wait(ctx)
	if err != nil {
		return a.track(err)
	}
	if !committed {
		return a.track(fmt.Errorf("writing %s: not committed", fingerprint))
	}
	return nil
}

// GetDoc returns the payload stored under fingerprint.
func (a *DocstoreApp) GetDoc(ctx context.Context, fingerprint string) (string, error) {
	data, ok, err := a.store.GetDocMeta(ctx, fingerprint)
	if err != nil {
		return "", a.track(err)
	}
	if !ok {
		return "", a.track(fmt.Errorf("no document %s", fingerprint))
	}
	return data, nil
}

// ListDocs returns every known fingerprint.
func (a *DocstoreApp) ListDocs(ctx context.Context) ([]ds.DocMetaRef, error) {
	refs, err := a.store.GetDocMetaFiles(ctx)
	return refs, a.track(err)
}

// DocExists reports whether fingerprint has a record.
func (a *DocstoreApp) DocExists(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := a.store.Contains(ctx, fingerprint)
	return ok, a.track(err)
}

// DeleteDoc removes a record and, if dataFile is non-empty, the stash file
// holding the document's data.
func (a *DocstoreApp) DeleteDoc(ctx context.Context, fingerprint, dataFile string) (*ds.DeleteResult, error) {
	ref := ds.DocMetaRef{Fingerprint: fingerprint}
	if dataFile != "" {
		ref.DocFile = &ds.FileRef{Name: dataFile}
	}
	result, err := a.store.Delete(ctx, ref)
	return result, a.track(err)
}

// PutFile resolves rawPath and stores its content under backend:name.
// An empty name defaults to the file's base name.
func (a *DocstoreApp) PutFile(ctx context.Context, backend, name, rawPath string, meta ds.FileMeta) (*ds.FileDescriptor, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, a.track(fmt.Errorf("resolving path: %w", err))
	}
	if name == "" {
		name = p.Info().Name()
	}
	desc, err := a.store.WriteFile(ctx, ds.Backend(backend), ds.FileRef{Name: name}, ds.PathData(p.String()), meta)
	return desc, a.track(err)
}

// GetFile returns the content stored under backend:name.
func (a *DocstoreApp) GetFile(ctx context.Context, backend, name string) ([]byte, error) {
	content, ok, err := a.store.ReadFile(ctx, ds.Backend(backend), ds.FileRef{Name: name})
	if err != nil {
		return nil, a.track(err)
	}
	if !ok {
		return nil, a.track(fmt.Errorf("no file %s:%s", backend, name))
	}
	return content, nil
}

// FileInfo returns the descriptor of backend:name.
func (a *DocstoreApp) FileInfo(ctx context.Context, backend, name string) (*ds.FileDescriptor, error) {
	desc, err := a.store.GetFile(ctx, ds.Backend(backend), ds.FileRef{Name: name})
	if err != nil {
		return nil, a.track(err)
	}
	if desc == nil {
		return nil, a.track(fmt.Errorf("no file %s:%s", backend, name))
	}
	return desc, nil
}

// DeleteFile removes backend:name.
func (a *DocstoreApp) DeleteFile(ctx context.Context, backend, name string) error {
	return a.track(a.store.DeleteFile(ctx, ds.Backend(backend), ds.FileRef{Name: name}))
}

// Snapshot delivers the current records to listener and keeps it registered
// until the returned subscription is cancelled or the app is closed.
func (a *DocstoreApp) Snapshot(ctx context.Context, listener ds.DocMetaSnapshotListener) (*ds.SnapshotResult, error) {
	result, err := a.store.Snapshot(ctx, listener)
	return result, a.track(err)
}

// Overview summarizes the datastore.
func (a *DocstoreApp) Overview(ctx context.Context) (*ds.Overview, error) {
	overview, err := a.store.Overview(ctx)
	return overview, a.track(err)
}

// ErrNotCloud is returned by Restore for datastores without a mirror.
var ErrNotCloud = errors.New("datastore is not mirrored")

// Restore pulls every mirrored object into the local records. passphrase
// unlocks the private key when the mirror is sealed and is ignored otherwise.
func (a *DocstoreApp) Restore(ctx context.Context, passphrase string) (*datastore.RestoreResult, error) {
	cloud, ok := a.store.(*datastore.CloudStore)
	if !ok {
		return nil, a.track(ErrNotCloud)
	}

	var dec ds.DecryptionContext
	if a.cfg.Datastore.Encrypt {
		var err error
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, a.track(fmt.Errorf("unlocking keys: %w", err))
		}
	}

	result, err := cloud.Restore(ctx, dec)
	return result, a.track(err)
}

// NeedsPassphrase reports whether Restore requires a passphrase.
func (a *DocstoreApp) NeedsPassphrase() bool {
	_, ok := a.store.(*datastore.CloudStore)
	return ok && a.cfg.Datastore.Encrypt
}

// Close stops the datastore and closes the log file.
func (a *DocstoreApp) Close() error {
	var firstErr error
	if err := a.store.Stop(); err != nil {
		firstErr = fmt.Errorf("stopping datastore: %w", err)
		a.op.Fail()
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed())

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// SetupKeys generates the key pair used to seal mirrored objects. It does
// not start a datastore.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("keys already configured")
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

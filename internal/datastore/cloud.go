package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"docstore-go/internal/blob"
	"docstore-go/internal/ds"
)

// CloudStore is a disk store whose commits are mirrored to an object store.
// Written means "stored on local disk"; committed means "accepted by the
// mirror".
type CloudStore struct {
	*Store
	remote *objectMirror
}

// NewCloud creates a cloud datastore mirroring to objects. When seal is
// true, objects are encrypted with opts.Encryptor before upload.
func NewCloud(objects blob.ObjectStore, seal bool, opts Options) (*CloudStore, error) {
	m := &objectMirror{objects: objects}
	if seal {
		if opts.Encryptor == nil {
			return nil, errors.New("cloud datastore: encryption requested without an encryptor")
		}
		m.enc = opts.Encryptor
	}
	caps := ds.Capabilities{
		NetworkLayers: []string{"local", "web"},
		Durable:       true,
		Mirrored:      true,
		LiveUpdates:   true,
	}
	s := newStore("cloud", newDiskRecords(opts.Directories), m, caps, opts)
	s.makeDir = true
	return &CloudStore{Store: s, remote: m}, nil
}

// RestoreResult counts what Restore pulled from the mirror.
type RestoreResult struct {
	Docs  int
	Files int
}

// Restore copies every mirrored document and file into the local store,
// replacing local copies, and publishes one change batch for the documents.
// dec is required when the mirror is sealed. If Restore fails midway, the
// documents already replaced are still published.
func (c *CloudStore) Restore(ctx context.Context, dec ds.DecryptionContext) (*RestoreResult, error) {
	if c.remote.enc != nil && dec == nil {
		return nil, errors.New("restore: mirror is encrypted; unlock the keys first")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, ds.ErrNotRunning
	}

	result := &RestoreResult{}

	docPaths, err := c.remote.objects.List(ctx, mirrorDocsPrefix)
	if err != nil {
		return nil, fmt.Errorf("restore: listing documents: %w", err)
	}
	var events []ds.DocMetaEvent
	defer func() {
		if len(events) > 0 {
			c.publishLocked(events...)
		}
	}()
	for _, p := range docPaths {
		fp := strings.TrimSuffix(strings.TrimPrefix(p, mirrorDocsPrefix), docSuffix)
		if ds.ValidateFingerprint(fp) != nil || !strings.HasSuffix(p, docSuffix) {
			c.logger.Warn("skipping unexpected mirror object", "path", p)
			continue
		}
		data, err := c.remote.pull(ctx, p, dec)
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("restore: %s: %w", p, &ds.TypeMismatchError{Field: "data", Want: "UTF-8 text", Got: "binary"})
		}
		created, err := c.records.PutDoc(ctx, fp, string(data))
		if err != nil {
			return nil, fmt.Errorf("restore: writing %s: %w", fp, err)
		}
		kind := ds.EventUpdated
		if created {
			kind = ds.EventCreated
		}
		events = append(events, ds.DocMetaEvent{
			Fingerprint: fp,
			DocMeta:     string(data),
			DocInfo:     ds.DocInfoFromPayload(string(data)),
			Kind:        kind,
		})
		result.Docs++
	}

	filePaths, err := c.remote.objects.List(ctx, mirrorFilesPrefix)
	if err != nil {
		return nil, fmt.Errorf("restore: listing files: %w", err)
	}
	for _, p := range filePaths {
		rec, err := c.remote.pullFile(ctx, p, dec)
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		if err := ds.ValidateFileRef(rec.Backend, ds.FileRef{Name: rec.Name}); err != nil {
			c.logger.Warn("skipping malformed mirrored file", "path", p, "error", err)
			continue
		}
		if err := c.records.PutFile(ctx, rec); err != nil {
			return nil, fmt.Errorf("restore: writing file %s:%s: %w", rec.Backend, rec.Name, err)
		}
		result.Files++
	}

	c.logger.Info("restored from mirror", "docs", result.Docs, "files", result.Files)
	return result, nil
}

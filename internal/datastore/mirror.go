package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"docstore-go/internal/blob"
	"docstore-go/internal/ds"
	"docstore-go/internal/encryption"
)

const (
	mirrorDocsPrefix  = "docs/"
	mirrorFilesPrefix = "files/"
	// mirrorProbe is looked up by Validate; it does not need to exist.
	mirrorProbe = ".docstore"
)

// objectMirror copies committed records into an object store:
//
//	docs/<fingerprint>.json     payload
//	files/<backend>/<name>      msgpack-encoded fileRecord with content
//
// When enc is set every object is sealed before upload.
type objectMirror struct {
	objects blob.ObjectStore
	enc     ds.Encryptor
}

var _ mirror = (*objectMirror)(nil)

func mirrorDocPath(fingerprint string) string {
	return mirrorDocsPrefix + fingerprint + docSuffix
}

func mirrorFilePath(backend ds.Backend, name string) string {
	return mirrorFilesPrefix + string(backend) + "/" + name
}

func (m *objectMirror) Validate(ctx context.Context) error {
	if m.enc != nil && !m.enc.IsConfigured() {
		return errors.New("mirror encryption enabled but keys are not set up")
	}
	if _, err := m.objects.Exists(ctx, mirrorProbe); err != nil {
		return fmt.Errorf("checking mirror: %w", err)
	}
	return nil
}

func (m *objectMirror) PushDoc(ctx context.Context, fingerprint, data string) error {
	return m.put(ctx, mirrorDocPath(fingerprint), []byte(data))
}

func (m *objectMirror) RemoveDoc(ctx context.Context, fingerprint string) error {
	return m.objects.Delete(ctx, mirrorDocPath(fingerprint))
}

func (m *objectMirror) PushFile(ctx context.Context, rec *fileRecord) error {
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding file record: %w", err)
	}
	return m.put(ctx, mirrorFilePath(rec.Backend, rec.Name), b)
}

func (m *objectMirror) RemoveFile(ctx context.Context, backend ds.Backend, name string) error {
	return m.objects.Delete(ctx, mirrorFilePath(backend, name))
}

func (m *objectMirror) put(ctx context.Context, path string, data []byte) error {
	if m.enc != nil {
		sealed, err := encryption.SealBytes(m.enc, data)
		if err != nil {
			return fmt.Errorf("sealing %s: %w", path, err)
		}
		data = sealed
	}
	return blob.WriteAll(ctx, m.objects, path, data)
}

// pull reads an object, opening it with dec when the mirror is sealed.
func (m *objectMirror) pull(ctx context.Context, path string, dec ds.DecryptionContext) ([]byte, error) {
	data, err := blob.ReadAll(ctx, m.objects, path)
	if err != nil {
		return nil, err
	}
	if m.enc == nil {
		return data, nil
	}
	plain, err := encryption.OpenBytes(dec, data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return plain, nil
}

func (m *objectMirror) pullFile(ctx context.Context, path string, dec ds.DecryptionContext) (*fileRecord, error) {
	b, err := m.pull(ctx, path, dec)
	if err != nil {
		return nil, err
	}
	var rec fileRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &rec, nil
}

package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"docstore-go/internal/ds"
	"docstore-go/internal/kv"
)

// kvRecords keeps documents and files in a kv.Store:
//
//	doc:<fingerprint>        -> raw payload
//	file:<backend>:<name>    -> msgpack-encoded fileRecord
type kvRecords struct {
	scheme string
	open   func(ctx context.Context) (kv.Store, error)
	kv     kv.Store
}

var _ recordStore = (*kvRecords)(nil)

func docKey(fingerprint string) kv.Key {
	return kv.Key{"doc", fingerprint}
}

func fileKey(backend ds.Backend, name string) kv.Key {
	return kv.Key{"file", string(backend), name}
}

func (r *kvRecords) Open(ctx context.Context) error {
	store, err := r.open(ctx)
	if err != nil {
		return err
	}
	r.kv = store
	return nil
}

func (r *kvRecords) Close() error {
	if r.kv == nil {
		return nil
	}
	err := r.kv.Close()
	r.kv = nil
	return err
}

func (r *kvRecords) PutDoc(ctx context.Context, fingerprint, data string) (bool, error) {
	_, err := r.kv.Get(ctx, docKey(fingerprint))
	created := errors.Is(err, kv.ErrNotFound)
	if err != nil && !created {
		return false, err
	}
	if err := r.kv.Set(ctx, docKey(fingerprint), []byte(data)); err != nil {
		return false, err
	}
	return created, nil
}

func (r *kvRecords) GetDoc(ctx context.Context, fingerprint string) (string, bool, error) {
	v, err := r.kv.Get(ctx, docKey(fingerprint))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (r *kvRecords) DeleteDoc(ctx context.Context, fingerprint string) (bool, error) {
	_, ok, err := r.GetDoc(ctx, fingerprint)
	if err != nil || !ok {
		return false, err
	}
	if err := r.kv.Delete(ctx, docKey(fingerprint)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *kvRecords) ListDocs(ctx context.Context) ([]docRecord, error) {
	var docs []docRecord
	for e, err := range r.kv.List(ctx, kv.Key{"doc"}) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, docRecord{Fingerprint: e.Key[1], Content: string(e.Value)})
	}
	return docs, nil
}

func (r *kvRecords) PutFile(ctx context.Context, rec *fileRecord) error {
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding file record: %w", err)
	}
	return r.kv.Set(ctx, fileKey(rec.Backend, rec.Name), b)
}

func (r *kvRecords) getFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error) {
	b, err := r.kv.Get(ctx, fileKey(backend, name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec fileRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decoding file record %s:%s: %w", backend, name, err)
	}
	return &rec, nil
}

func (r *kvRecords) StatFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error) {
	rec, err := r.getFile(ctx, backend, name)
	if rec == nil || err != nil {
		return nil, err
	}
	return rec.withoutContent(), nil
}

func (r *kvRecords) ReadFile(ctx context.Context, backend ds.Backend, name string) ([]byte, bool, error) {
	rec, err := r.getFile(ctx, backend, name)
	if rec == nil || err != nil {
		return nil, false, err
	}
	if rec.Content == nil {
		return []byte{}, true, nil
	}
	return rec.Content, true, nil
}

func (r *kvRecords) DeleteFile(ctx context.Context, backend ds.Backend, name string) (bool, error) {
	_, err := r.kv.Get(ctx, fileKey(backend, name))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.kv.Delete(ctx, fileKey(backend, name)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *kvRecords) FileURL(backend ds.Backend, name string) string {
	return r.scheme + "://" + string(backend) + "/" + name
}

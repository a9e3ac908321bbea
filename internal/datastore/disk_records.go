package datastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"docstore-go/internal/blob"
	"docstore-go/internal/ds"
)

const (
	docSuffix   = ".json"
	fileMetaDir = "filemeta"
)

// diskRecords keeps documents and files as plain files:
//
//	<DataDir>/<fingerprint>.json                   payload
//	<backend dir>/<name>                           file content
//	<DataDir>/filemeta/<backend>/<name>.msgpack    file record without content
//
// The backend directory comes from ds.Directories.ForBackend. A file exists
// once its record is written; content is written first and removed last.
type diskRecords struct {
	dirs  ds.Directories
	data  *blob.Local
	files map[ds.Backend]*blob.Local
}

var _ recordStore = (*diskRecords)(nil)

func newDiskRecords(dirs ds.Directories) *diskRecords {
	return &diskRecords{dirs: dirs}
}

func (r *diskRecords) Open(context.Context) error {
	data, err := blob.NewLocal(r.dirs.DataDir)
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	files := make(map[ds.Backend]*blob.Local, len(ds.Backends))
	for _, b := range ds.Backends {
		l, err := blob.NewLocal(r.dirs.ForBackend(b))
		if err != nil {
			return fmt.Errorf("opening %s directory: %w", b, err)
		}
		files[b] = l
	}
	r.data = data
	r.files = files
	return nil
}

func (r *diskRecords) Close() error {
	return nil
}

func docPath(fingerprint string) string {
	return fingerprint + docSuffix
}

func fileMetaPath(backend ds.Backend, name string) string {
	return path.Join(fileMetaDir, string(backend), name+".msgpack")
}

func (r *diskRecords) PutDoc(ctx context.Context, fingerprint, data string) (bool, error) {
	existed, err := r.data.Exists(ctx, docPath(fingerprint))
	if err != nil {
		return false, err
	}
	if err := blob.WriteAll(ctx, r.data, docPath(fingerprint), []byte(data)); err != nil {
		return false, err
	}
	return !existed, nil
}

func (r *diskRecords) GetDoc(ctx context.Context, fingerprint string) (string, bool, error) {
	b, err := blob.ReadAll(ctx, r.data, docPath(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (r *diskRecords) DeleteDoc(ctx context.Context, fingerprint string) (bool, error) {
	existed, err := r.data.Exists(ctx, docPath(fingerprint))
	if err != nil || !existed {
		return false, err
	}
	if err := r.data.Delete(ctx, docPath(fingerprint)); err != nil {
		return false, err
	}
	return true, nil
}

// ListDocs reads the top level of the data directory; other backends'
// files and sidecars live in subdirectories.
func (r *diskRecords) ListDocs(ctx context.Context) ([]docRecord, error) {
	paths, err := r.data.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var docs []docRecord
	for _, p := range paths {
		if strings.Contains(p, "/") || !strings.HasSuffix(p, docSuffix) {
			continue
		}
		fp := strings.TrimSuffix(p, docSuffix)
		if ds.ValidateFingerprint(fp) != nil {
			continue
		}
		content, ok, err := r.GetDoc(ctx, fp)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, docRecord{Fingerprint: fp, Content: content})
		}
	}
	return docs, nil
}

func (r *diskRecords) PutFile(ctx context.Context, rec *fileRecord) error {
	if err := blob.WriteAll(ctx, r.files[rec.Backend], rec.Name, rec.Content); err != nil {
		return err
	}
	b, err := msgpack.Marshal(rec.withoutContent())
	if err != nil {
		return fmt.Errorf("encoding file record: %w", err)
	}
	return blob.WriteAll(ctx, r.data, fileMetaPath(rec.Backend, rec.Name), b)
}

func (r *diskRecords) StatFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error) {
	b, err := blob.ReadAll(ctx, r.data, fileMetaPath(backend, name))
	if errors.Is(err, fs.ErrNotExist) {
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

func (r *diskRecords) ReadFile(ctx context.Context, backend ds.Backend, name string) ([]byte, bool, error) {
	rec, err := r.StatFile(ctx, backend, name)
	if rec == nil || err != nil {
		return nil, false, err
	}
	b, err := blob.ReadAll(ctx, r.files[backend], name)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *diskRecords) DeleteFile(ctx context.Context, backend ds.Backend, name string) (bool, error) {
	existed, err := r.data.Exists(ctx, fileMetaPath(backend, name))
	if err != nil {
		return false, err
	}
	if err := r.data.Delete(ctx, fileMetaPath(backend, name)); err != nil {
		return false, err
	}
	if err := r.files[backend].Delete(ctx, name); err != nil {
		return false, err
	}
	return existed, nil
}

func (r *diskRecords) FileURL(backend ds.Backend, name string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(r.files[backend].Path(name))}
	return u.String()
}

package datastore

import (
	"context"

	"docstore-go/internal/database"
	"docstore-go/internal/ds"
)

// sqlRecords keeps documents and files in SQLite.
type sqlRecords struct {
	open  func() (*database.SQLiteDatabase, error)
	db    *database.SQLiteDatabase
	clock ds.Clock
}

var _ recordStore = (*sqlRecords)(nil)

func (r *sqlRecords) Open(context.Context) error {
	db, err := r.open()
	if err != nil {
		return err
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return err
	}
	r.db = db
	return nil
}

func (r *sqlRecords) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *sqlRecords) PutDoc(ctx context.Context, fingerprint, data string) (bool, error) {
	return r.db.PutDocMeta(ctx, fingerprint, data, r.clock.Now().UTC())
}

func (r *sqlRecords) GetDoc(ctx context.Context, fingerprint string) (string, bool, error) {
	row, err := r.db.GetDocMeta(ctx, fingerprint)
	if row == nil || err != nil {
		return "", false, err
	}
	return row.Content, true, nil
}

func (r *sqlRecords) DeleteDoc(ctx context.Context, fingerprint string) (bool, error) {
	return r.db.DeleteDocMeta(ctx, fingerprint)
}

func (r *sqlRecords) ListDocs(ctx context.Context) ([]docRecord, error) {
	rows, err := r.db.ListDocMeta(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]docRecord, len(rows))
	for i, row := range rows {
		docs[i] = docRecord{Fingerprint: row.Fingerprint, Content: row.Content}
	}
	return docs, nil
}

func (r *sqlRecords) PutFile(ctx context.Context, rec *fileRecord) error {
	return r.db.PutFile(ctx, &database.FileRow{
		Backend:    string(rec.Backend),
		Name:       rec.Name,
		Content:    rec.Content,
		Meta:       rec.Meta,
		Hash:       rec.Hash,
		ModifiedAt: rec.ModifiedAt,
	})
}

func (r *sqlRecords) StatFile(ctx context.Context, backend ds.Backend, name string) (*fileRecord, error) {
	row, err := r.db.GetFile(ctx, string(backend), name)
	if row == nil || err != nil {
		return nil, err
	}
	return &fileRecord{
		Backend:    backend,
		Name:       name,
		Meta:       row.Meta,
		Size:       int64(len(row.Content)),
		Hash:       row.Hash,
		ModifiedAt: row.ModifiedAt,
	}, nil
}

func (r *sqlRecords) ReadFile(ctx context.Context, backend ds.Backend, name string) ([]byte, bool, error) {
	row, err := r.db.GetFile(ctx, string(backend), name)
	if row == nil || err != nil {
		return nil, false, err
	}
	if row.Content == nil {
		return []byte{}, true, nil
	}
	return row.Content, true, nil
}

func (r *sqlRecords) DeleteFile(ctx context.Context, backend ds.Backend, name string) (bool, error) {
	return r.db.DeleteFile(ctx, string(backend), name)
}

func (r *sqlRecords) FileURL(backend ds.Backend, name string) string {
	return "sqlite://" + string(backend) + "/" + name
}

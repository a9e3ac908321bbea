package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docstore-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DocMetaRow is a stored document-metadata record.
type DocMetaRow struct {
	Fingerprint string
	Content     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileRow is a stored file with its metadata.
type FileRow struct {
	Backend    string
	Name       string
	Content    []byte
	Meta       map[string]string
	Hash       string
	ModifiedAt time.Time
}

// SQLiteDatabase stores document metadata and files in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the
// latest schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Document metadata

// PutDocMeta inserts or replaces a record. created reports whether the
// fingerprint was new.
func (s *SQLiteDatabase) PutDocMeta(ctx context.Context, fingerprint, content string, now time.Time) (created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM doc_meta WHERE fingerprint = ?`, fingerprint).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		_, err = tx.ExecContext(ctx,
			`INSERT INTO doc_meta (fingerprint, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			fingerprint, content, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE doc_meta SET content = ?, updated_at = ? WHERE fingerprint = ?`,
			content, now, fingerprint)
	}
	if err != nil {
		return false, fmt.Errorf("storing doc meta %s: %w", fingerprint, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

// GetDocMeta returns nil if the fingerprint is unknown.
func (s *SQLiteDatabase) GetDocMeta(ctx context.Context, fingerprint string) (*DocMetaRow, error) {
	var row DocMetaRow
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, content, created_at, updated_at FROM doc_meta WHERE fingerprint = ?`,
		fingerprint).Scan(&row.Fingerprint, &row.Content, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding doc meta %s: %w", fingerprint, err)
	}
	return &row, nil
}

// DeleteDocMeta reports whether a record was removed.
func (s *SQLiteDatabase) DeleteDocMeta(ctx context.Context, fingerprint string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM doc_meta WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return false, fmt.Errorf("deleting doc meta %s: %w", fingerprint, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting doc meta %s: %w", fingerprint, err)
	}
	return n > 0, nil
}

// ListDocMeta returns every record ordered by fingerprint.
func (s *SQLiteDatabase) ListDocMeta(ctx context.Context) ([]*DocMetaRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, content, created_at, updated_at FROM doc_meta ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("listing doc meta: %w", err)
	}
	defer rows.Close()

	var result []*DocMetaRow
	for rows.Next() {
		var row DocMetaRow
		if err := rows.Scan(&row.Fingerprint, &row.Content, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning doc meta: %w", err)
		}
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing doc meta: %w", err)
	}
	return result, nil
}

// Files

// PutFile inserts or replaces a file.
func (s *SQLiteDatabase) PutFile(ctx context.Context, f *FileRow) error {
	meta, err := json.Marshal(f.Meta)
	if err != nil {
		return fmt.Errorf("encoding file meta: %w", err)
	}
	content := f.Content
	if content == nil {
		content = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO files (backend, name, content, meta, hash, modified_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (backend, name) DO UPDATE SET
		   content = excluded.content, meta = excluded.meta,
		   hash = excluded.hash, modified_at = excluded.modified_at`,
		f.Backend, f.Name, content, string(meta), f.Hash, f.ModifiedAt)
	if err != nil {
		return fmt.Errorf("storing file %s:%s: %w", f.Backend, f.Name, err)
	}
	return nil
}

// GetFile returns nil if the file is unknown.
func (s *SQLiteDatabase) GetFile(ctx context.Context, backend, name string) (*FileRow, error) {
	row := FileRow{Backend: backend, Name: name}
	var meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT content, meta, hash, modified_at FROM files WHERE backend = ? AND name = ?`,
		backend, name).Scan(&row.Content, &meta, &row.Hash, &row.ModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file %s:%s: %w", backend, name, err)
	}
	if err := json.Unmarshal([]byte(meta), &row.Meta); err != nil {
		return nil, fmt.Errorf("decoding meta of %s:%s: %w", backend, name, err)
	}
	return &row, nil
}

// DeleteFile reports whether a file was removed.
func (s *SQLiteDatabase) DeleteFile(ctx context.Context, backend, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE backend = ? AND name = ?`, backend, name)
	if err != nil {
		return false, fmt.Errorf("deleting file %s:%s: %w", backend, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting file %s:%s: %w", backend, name, err)
	}
	return n > 0, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

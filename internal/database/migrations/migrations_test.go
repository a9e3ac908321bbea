package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"doc_meta", "files", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh database should need migration
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	// Error should mention needing migration
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckDBMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestSchema_DocMetaPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := "INSERT INTO doc_meta (fingerprint, content, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))"
	if _, err := db.Exec(insert, "fp-1", "{}"); err != nil {
		t.Fatalf("Failed to insert doc meta: %v", err)
	}

	// A second row with the same fingerprint must be rejected.
	if _, err := db.Exec(insert, "fp-1", "{}"); err == nil {
		t.Error("Expected primary key violation for duplicate fingerprint, but insert succeeded")
	}
}

func TestSchema_FilesKeyedByBackendAndName(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := "INSERT INTO files (backend, name, content, hash, modified_at) VALUES (?, ?, x'00', 'h', datetime('now'))"
	if _, err := db.Exec(insert, "stash", "a.pdf"); err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}

	// The same name may exist in a different backend.
	if _, err := db.Exec(insert, "image", "a.pdf"); err != nil {
		t.Errorf("Insert of same name in another backend failed: %v", err)
	}

	if _, err := db.Exec(insert, "stash", "a.pdf"); err == nil {
		t.Error("Expected primary key violation for duplicate backend/name, but insert succeeded")
	}

	var meta string
	if err := db.QueryRow("SELECT meta FROM files WHERE backend = 'stash' AND name = 'a.pdf'").Scan(&meta); err != nil {
		t.Fatalf("Failed to read meta: %v", err)
	}
	if meta != "{}" {
		t.Errorf("default meta = %q, want {}", meta)
	}
}

func TestReadStatus(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	before, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if before.Current != 0 || before.Latest == 0 {
		t.Errorf("ReadStatus() before migration = %+v", before)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	after, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if after.Current != after.Latest || after.Dirty {
		t.Errorf("ReadStatus() after migration = %+v", after)
	}
}

func TestStatus_Err(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		wantErr string
	}{
		{name: "up to date", status: Status{Current: 1, Latest: 1}},
		{name: "never migrated", status: Status{Latest: 1}, wantErr: "needs migration"},
		{name: "dirty", status: Status{Current: 1, Latest: 1, Dirty: true}, wantErr: "dirty state"},
		{name: "behind", status: Status{Current: 1, Latest: 3}, wantErr: "2 migrations behind"},
		{name: "ahead", status: Status{Current: 4, Latest: 3}, wantErr: "binary needs update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.status.Err()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Err() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}

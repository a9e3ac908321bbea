package database

import (
	"context"
	"testing"
	"time"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

var (
	t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func TestSQLiteDatabase_PutDocMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("first write creates", func(t *testing.T) {
		db := newTestDB(t)

		created, err := db.PutDocMeta(ctx, "fp-1", `{"a":1}`, t0)
		if err != nil {
			t.Fatalf("PutDocMeta() error = %v", err)
		}
		if !created {
			t.Error("PutDocMeta() created = false, want true")
		}
	})

	t.Run("second write updates and keeps created_at", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.PutDocMeta(ctx, "fp-1", `{"a":1}`, t0); err != nil {
			t.Fatalf("PutDocMeta() error = %v", err)
		}
		created, err := db.PutDocMeta(ctx, "fp-1", `{"a":2}`, t1)
		if err != nil {
			t.Fatalf("PutDocMeta() error = %v", err)
		}
		if created {
			t.Error("PutDocMeta() created = true on overwrite, want false")
		}

		row, err := db.GetDocMeta(ctx, "fp-1")
		if err != nil {
			t.Fatalf("GetDocMeta() error = %v", err)
		}
		if row == nil {
			t.Fatal("GetDocMeta() returned nil")
		}
		if row.Content != `{"a":2}` {
			t.Errorf("Content = %q, want %q", row.Content, `{"a":2}`)
		}
		if !row.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt = %v, want %v", row.CreatedAt, t0)
		}
		if !row.UpdatedAt.Equal(t1) {
			t.Errorf("UpdatedAt = %v, want %v", row.UpdatedAt, t1)
		}
	})
}

func TestSQLiteDatabase_GetDocMeta_NotFound(t *testing.T) {
	db := newTestDB(t)

	row, err := db.GetDocMeta(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetDocMeta() error = %v", err)
	}
	if row != nil {
		t.Errorf("GetDocMeta() = %+v, want nil", row)
	}
}

func TestSQLiteDatabase_DeleteDocMeta(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.PutDocMeta(ctx, "fp-1", "{}", t0); err != nil {
		t.Fatalf("PutDocMeta() error = %v", err)
	}

	deleted, err := db.DeleteDocMeta(ctx, "fp-1")
	if err != nil {
		t.Fatalf("DeleteDocMeta() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteDocMeta() = false for existing record")
	}

	deleted, err = db.DeleteDocMeta(ctx, "fp-1")
	if err != nil {
		t.Fatalf("second DeleteDocMeta() error = %v", err)
	}
	if deleted {
		t.Error("second DeleteDocMeta() = true, want false")
	}
}

func TestSQLiteDatabase_ListDocMeta(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for _, fp := range []string{"c", "a", "b"} {
		if _, err := db.PutDocMeta(ctx, fp, `"`+fp+`"`, t0); err != nil {
			t.Fatalf("PutDocMeta(%s) error = %v", fp, err)
		}
	}

	rows, err := db.ListDocMeta(ctx)
	if err != nil {
		t.Fatalf("ListDocMeta() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i].Fingerprint != want {
			t.Errorf("rows[%d].Fingerprint = %q, want %q", i, rows[i].Fingerprint, want)
		}
	}

}

func TestSQLiteDatabase_Files(t *testing.T) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		db := newTestDB(t)

		in := &FileRow{
			Backend:    "stash",
			Name:       "a.pdf",
			Content:    []byte("%PDF"),
			Meta:       map[string]string{"mime": "application/pdf"},
			Hash:       "abc",
			ModifiedAt: t0,
		}
		if err := db.PutFile(ctx, in); err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}

		got, err := db.GetFile(ctx, "stash", "a.pdf")
		if err != nil {
			t.Fatalf("GetFile() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetFile() returned nil")
		}
		if string(got.Content) != "%PDF" {
			t.Errorf("Content = %q, want %%PDF", got.Content)
		}
		if got.Meta["mime"] != "application/pdf" {
			t.Errorf("Meta = %v", got.Meta)
		}
		if got.Hash != "abc" {
			t.Errorf("Hash = %q, want abc", got.Hash)
		}
		if !got.ModifiedAt.Equal(t0) {
			t.Errorf("ModifiedAt = %v, want %v", got.ModifiedAt, t0)
		}
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		db := newTestDB(t)

		for _, content := range []string{"v1", "v2"} {
			err := db.PutFile(ctx, &FileRow{Backend: "image", Name: "x.png", Content: []byte(content), Hash: content, ModifiedAt: t0})
			if err != nil {
				t.Fatalf("PutFile(%s) error = %v", content, err)
			}
		}
		got, err := db.GetFile(ctx, "image", "x.png")
		if err != nil {
			t.Fatalf("GetFile() error = %v", err)
		}
		if string(got.Content) != "v2" {
			t.Errorf("Content = %q, want v2", got.Content)
		}
	})

	t.Run("same name in different backends", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.PutFile(ctx, &FileRow{Backend: "stash", Name: "n", Content: []byte("s"), ModifiedAt: t0}); err != nil {
			t.Fatal(err)
		}
		if err := db.PutFile(ctx, &FileRow{Backend: "image", Name: "n", Content: []byte("i"), ModifiedAt: t0}); err != nil {
			t.Fatal(err)
		}
		s, _ := db.GetFile(ctx, "stash", "n")
		i, _ := db.GetFile(ctx, "image", "n")
		if s == nil || i == nil || string(s.Content) != "s" || string(i.Content) != "i" {
			t.Errorf("backends collided: stash=%+v image=%+v", s, i)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.PutFile(ctx, &FileRow{Backend: "logs", Name: "empty.log", ModifiedAt: t0}); err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		got, err := db.GetFile(ctx, "logs", "empty.log")
		if err != nil {
			t.Fatalf("GetFile() error = %v", err)
		}
		if got == nil || len(got.Content) != 0 {
			t.Errorf("GetFile() = %+v, want empty content", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.PutFile(ctx, &FileRow{Backend: "stash", Name: "a", Content: []byte("x"), ModifiedAt: t0}); err != nil {
			t.Fatal(err)
		}
		if deleted, err := db.DeleteFile(ctx, "stash", "a"); err != nil || !deleted {
			t.Fatalf("DeleteFile() = %v, %v", deleted, err)
		}
		if deleted, err := db.DeleteFile(ctx, "stash", "a"); err != nil || deleted {
			t.Fatalf("second DeleteFile() = %v, %v", deleted, err)
		}
		if got, err := db.GetFile(ctx, "stash", "a"); err != nil || got != nil {
			t.Fatalf("GetFile() after delete = %+v, %v", got, err)
		}
	})
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db := newTestDB(t)
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
}

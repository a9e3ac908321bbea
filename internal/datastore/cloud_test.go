package datastore_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docstore-go/internal/blob"
	"docstore-go/internal/config"
	"docstore-go/internal/datastore"
	"docstore-go/internal/ds"
	"docstore-go/internal/encryption"
	"docstore-go/internal/testutil"
)

func newCloud(t *testing.T, s3 *testutil.MockS3, seal bool, opts datastore.Options) *datastore.CloudStore {
	t.Helper()
	store, err := datastore.NewCloud(blob.NewS3(s3, "test-bucket", ""), seal, opts)
	if err != nil {
		t.Fatalf("NewCloud() error = %v", err)
	}
	return store
}

// configForKeys points at a key pair that has not been set up.
func configForKeys(t *testing.T) config.EncryptionConfig {
	dir := t.TempDir()
	return config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "docstore.pub"),
		PrivateKeyPath: filepath.Join(dir, "docstore.key"),
	}
}

func TestCloud_MirrorsCommits(t *testing.T) {
	ctx := context.Background()
	s3 := testutil.NewMockS3()
	store := newCloud(t, s3, false, testOptions(t))
	startDatastore(t, store)

	write(t, store, "fp1", `{"a":1}`)
	if _, err := store.WriteFile(ctx, ds.BackendStash, ds.FileRef{Name: "paper.pdf"}, ds.BytesData([]byte("%PDF")), nil); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, ok := s3.Object("docs/fp1.json")
	if !ok || string(data) != `{"a":1}` {
		t.Errorf("mirrored doc = %q, %v", data, ok)
	}
	if _, ok := s3.Object("files/stash/paper.pdf"); !ok {
		t.Errorf("mirrored file missing; keys = %v", s3.Keys())
	}

	ref := ds.FileRef{Name: "paper.pdf"}
	if _, err := store.Delete(ctx, ds.DocMetaRef{Fingerprint: "fp1", DocFile: &ref}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if keys := s3.Keys(); len(keys) != 0 {
		t.Errorf("mirror keys after Delete = %v, want none", keys)
	}
}

func TestCloud_MirrorFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("new record is rolled back", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))
		errs := startDatastore(t, store)

		rec := newBatchRecorder()
		store.AddDocMetaSnapshotEventListener(rec.listener)

		boom := errors.New("bucket unavailable")
		s3.SetPutErr(boom)
		m := ds.NewMutation()
		err := store.Write(ctx, "fp1", "data", nil, m)
		if err == nil || !strings.Contains(err.Error(), boom.Error()) {
			t.Fatalf("Write() error = %v, want %v", err, boom)
		}
		if v, ok := m.Written().Value(); !ok || !v {
			t.Errorf("Written() = %v, %v; want true, true", v, ok)
		}
		if v, ok := m.Committed().Value(); !ok || v {
			t.Errorf("Committed() = %v, %v; want false, true", v, ok)
		}
		if ok, _ := store.Contains(ctx, "fp1"); ok {
			t.Error("uncommitted record still visible")
		}

		store.Stop()
		rec.expectNone(t)
		if len(errs.all()) != 1 {
			t.Errorf("error listener got %v", errs.all())
		}
	})

	t.Run("existing record is restored", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))
		startDatastore(t, store)

		write(t, store, "fp1", "v1")
		s3.SetPutErr(errors.New("bucket unavailable"))
		if err := store.Write(ctx, "fp1", "v2", nil, nil); err == nil {
			t.Fatal("Write() error = nil")
		}
		data, _, _ := store.GetDocMeta(ctx, "fp1")
		if data != "v1" {
			t.Errorf("GetDocMeta() = %q, want v1", data)
		}

		s3.SetPutErr(nil)
		write(t, store, "fp1", "v3")
		mirrored, _ := s3.Object("docs/fp1.json")
		if string(mirrored) != "v3" {
			t.Errorf("mirrored doc = %q, want v3", mirrored)
		}
	})

	t.Run("error listener may read the store", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))

		seen := make(chan bool, 1)
		_, err := store.Init(ctx, func(error) {
			ok, _ := store.Contains(ctx, "fp1")
			seen <- ok
		})
		if err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		t.Cleanup(func() { store.Stop() })

		s3.SetPutErr(errors.New("bucket unavailable"))
		if err := store.Write(ctx, "fp1", "data", nil, nil); err == nil {
			t.Fatal("Write() error = nil")
		}
		select {
		case ok := <-seen:
			if ok {
				t.Error("Contains() in error listener = true for a rolled back write")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("error listener did not return")
		}
	})

	t.Run("new file is rolled back", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))
		startDatastore(t, store)

		ref := ds.FileRef{Name: "paper.pdf"}
		s3.SetPutErr(errors.New("bucket unavailable"))
		if _, err := store.WriteFile(ctx, ds.BackendStash, ref, ds.BytesData([]byte("%PDF")), nil); err == nil {
			t.Fatal("WriteFile() error = nil")
		}
		if ok, _ := store.ContainsFile(ctx, ds.BackendStash, ref); ok {
			t.Error("unmirrored file still visible")
		}
	})

	t.Run("existing file is restored", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))
		startDatastore(t, store)

		ref := ds.FileRef{Name: "paper.pdf"}
		if _, err := store.WriteFile(ctx, ds.BackendStash, ref, ds.BytesData([]byte("v1")), ds.FileMeta{"pages": "1"}); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		s3.SetPutErr(errors.New("bucket unavailable"))
		if _, err := store.WriteFile(ctx, ds.BackendStash, ref, ds.BytesData([]byte("v2")), nil); err == nil {
			t.Fatal("WriteFile() error = nil")
		}

		content, ok, _ := store.ReadFile(ctx, ds.BackendStash, ref)
		if !ok || string(content) != "v1" {
			t.Errorf("ReadFile() = %q, %v; want v1", content, ok)
		}
		desc, _ := store.GetFile(ctx, ds.BackendStash, ref)
		if desc == nil || desc.Meta["pages"] != "1" || desc.Hash != testutil.Blake3Hex([]byte("v1")) {
			t.Errorf("GetFile() = %+v", desc)
		}
	})

	t.Run("delete is published before the mirror fails", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		store := newCloud(t, s3, false, testOptions(t))
		errs := startDatastore(t, store)

		write(t, store, "fp1", "data")
		rec := newBatchRecorder()
		store.AddDocMetaSnapshotEventListener(rec.listener)

		s3.DeleteErr = errors.New("bucket unavailable")
		result, err := store.Delete(ctx, ds.DocMetaRef{Fingerprint: "fp1"})
		if err == nil {
			t.Fatal("Delete() error = nil")
		}
		if result == nil || !result.DocMetaFile.Deleted {
			t.Errorf("Delete() result = %+v, want the local delete reported", result)
		}
		if ok, _ := store.Contains(ctx, "fp1"); ok {
			t.Error("record still present after Delete")
		}
		batch := rec.next(t)
		if len(batch.Events) != 1 || batch.Events[0].Kind != ds.EventDeleted || batch.Events[0].Fingerprint != "fp1" {
			t.Errorf("batch events = %+v, want fp1 deleted", batch.Events)
		}

		// A retry clears the stale mirror object.
		s3.DeleteErr = nil
		result, err = store.Delete(ctx, ds.DocMetaRef{Fingerprint: "fp1"})
		if err != nil {
			t.Fatalf("retried Delete() error = %v", err)
		}
		if result.DocMetaFile.Deleted {
			t.Errorf("retried Delete() = %+v, want nothing deleted", result)
		}
		if _, ok := s3.Object("docs/fp1.json"); ok {
			t.Error("mirror object left after retried Delete")
		}

		store.Stop()
		rec.expectNone(t)
		if len(errs.all()) != 1 {
			t.Errorf("error listener got %v", errs.all())
		}
	})
}

func TestCloud_InitErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable bucket", func(t *testing.T) {
		s3 := testutil.NewMockS3()
		s3.HeadErr = &testutil.S3APIError{Code: "AccessDenied", Message: "denied"}
		store := newCloud(t, s3, false, testOptions(t))

		_, err := store.Init(ctx, nil)
		var initErr *ds.InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("Init() error = %v, want *InitError", err)
		}
		if initErr.Backend != "cloud" {
			t.Errorf("InitError.Backend = %q", initErr.Backend)
		}
		if _, err := store.Contains(ctx, "fp"); !errors.Is(err, ds.ErrNotRunning) {
			t.Errorf("Contains() after failed Init error = %v", err)
		}
	})

	t.Run("sealing without an encryptor", func(t *testing.T) {
		_, err := datastore.NewCloud(blob.NewS3(testutil.NewMockS3(), "b", ""), true, testOptions(t))
		if err == nil {
			t.Fatal("NewCloud() error = nil")
		}
	})

	t.Run("sealing without keys", func(t *testing.T) {
		opts := testOptions(t)
		opts.Encryptor = encryption.NewAgeEncryptor(configForKeys(t))
		store := newCloud(t, testutil.NewMockS3(), true, opts)
		_, err := store.Init(ctx, nil)
		var initErr *ds.InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("Init() error = %v, want *InitError", err)
		}
	})
}

func TestCloud_Sealed(t *testing.T) {
	ctx := context.Background()
	s3 := testutil.NewMockS3()
	opts := testOptions(t)
	opts.Encryptor = testutil.NewTestEncryptor()
	store := newCloud(t, s3, true, opts)
	startDatastore(t, store)

	write(t, store, "fp1", "secret")
	if _, err := store.WriteFile(ctx, ds.BackendAttachment, ds.FileRef{Name: "a"}, ds.BytesData([]byte("hidden")), nil); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sealed, _ := s3.Object("docs/fp1.json")
	if bytes.Equal(sealed, []byte("secret")) {
		t.Errorf("mirrored doc stored in the clear: %q", sealed)
	}
	dec, _ := opts.Encryptor.Unlock("")
	plain, err := encryption.OpenBytes(dec, sealed)
	if err != nil || string(plain) != "secret" {
		t.Errorf("OpenBytes() = %q, %v", plain, err)
	}

	// Local reads are never sealed.
	data, _, _ := store.GetDocMeta(ctx, "fp1")
	if data != "secret" {
		t.Errorf("GetDocMeta() = %q", data)
	}
}

func TestCloud_Restore(t *testing.T) {
	ctx := context.Background()

	for _, seal := range []bool{false, true} {
		name := "plain"
		if seal {
			name = "sealed"
		}
		t.Run(name, func(t *testing.T) {
			s3 := testutil.NewMockS3()
			enc := testutil.NewTestEncryptor()

			srcOpts := testOptions(t)
			srcOpts.Encryptor = enc
			src := newCloud(t, s3, seal, srcOpts)
			startDatastore(t, src)
			write(t, src, "fp1", `{"docInfo":{"title":"One"}}`)
			write(t, src, "fp2", "two")
			src.WriteFile(ctx, ds.BackendStash, ds.FileRef{Name: "one.pdf"}, ds.BytesData([]byte("%PDF-1")), ds.FileMeta{"pages": "3"})
			src.WriteFile(ctx, ds.BackendImage, ds.FileRef{Name: "cover.png"}, ds.BytesData([]byte("png")), nil)
			src.Stop()

			// Seed a stale local copy without touching the mirror; cloud
			// stores keep their local records in the disk layout.
			dstOpts := testOptions(t)
			dstOpts.Encryptor = enc
			local := datastore.NewDisk(dstOpts)
			startDatastore(t, local)
			write(t, local, "fp2", "stale")
			local.Stop()

			dst := newCloud(t, s3, seal, dstOpts)
			startDatastore(t, dst)

			rec := newBatchRecorder()
			dst.AddDocMetaSnapshotEventListener(rec.listener)

			var dec ds.DecryptionContext
			if seal {
				if _, err := dst.Restore(ctx, nil); err == nil {
					t.Fatal("Restore() of a sealed mirror without keys succeeded")
				}
				dec, _ = enc.Unlock("")
			}
			result, err := dst.Restore(ctx, dec)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if result.Docs != 2 || result.Files != 2 {
				t.Errorf("Restore() = %+v, want 2 docs and 2 files", result)
			}

			data, _, _ := dst.GetDocMeta(ctx, "fp2")
			if data != "two" {
				t.Errorf("GetDocMeta(fp2) = %q, want two", data)
			}
			content, ok, _ := dst.ReadFile(ctx, ds.BackendStash, ds.FileRef{Name: "one.pdf"})
			if !ok || string(content) != "%PDF-1" {
				t.Errorf("ReadFile() = %q, %v", content, ok)
			}
			desc, _ := dst.GetFile(ctx, ds.BackendStash, ds.FileRef{Name: "one.pdf"})
			if desc == nil || desc.Meta["pages"] != "3" || desc.Hash != testutil.Blake3Hex([]byte("%PDF-1")) {
				t.Errorf("GetFile() = %+v", desc)
			}

			batch := rec.next(t)
			if len(batch.Events) != 2 {
				t.Fatalf("restore batch has %d events", len(batch.Events))
			}
			kinds := map[string]ds.EventKind{}
			for _, e := range batch.Events {
				kinds[e.Fingerprint] = e.Kind
			}
			if kinds["fp1"] != ds.EventCreated || kinds["fp2"] != ds.EventUpdated {
				t.Errorf("restore events = %v", kinds)
			}
		})
	}
}

func TestCloud_RestorePartialFailure(t *testing.T) {
	ctx := context.Background()
	s3 := testutil.NewMockS3()

	src := newCloud(t, s3, false, testOptions(t))
	startDatastore(t, src)
	write(t, src, "fp1", "one")
	src.Stop()
	s3.SetObject("files/stash/broken.pdf", []byte{0xc1})

	dst := newCloud(t, s3, false, testOptions(t))
	startDatastore(t, dst)
	rec := newBatchRecorder()
	dst.AddDocMetaSnapshotEventListener(rec.listener)

	if _, err := dst.Restore(ctx, nil); err == nil {
		t.Fatal("Restore() error = nil")
	}
	if ok, _ := dst.Contains(ctx, "fp1"); !ok {
		t.Fatal("restored document missing")
	}
	batch := rec.next(t)
	if len(batch.Events) != 1 || batch.Events[0].Fingerprint != "fp1" || batch.Events[0].Kind != ds.EventCreated {
		t.Errorf("restore batch events = %+v", batch.Events)
	}
}

package datastore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"docstore-go/internal/blob"
	"docstore-go/internal/datastore"
	"docstore-go/internal/ds"
	"docstore-go/internal/testutil"
)

// backend builds an unstarted datastore over the given directories.
type backend struct {
	name    string
	durable bool
	open    func(t *testing.T, opts datastore.Options) ds.Datastore
}

func allBackends() []backend {
	return []backend{
		{name: "memory", open: func(_ *testing.T, opts datastore.Options) ds.Datastore {
			return datastore.NewMemory(opts)
		}},
		{name: "disk", durable: true, open: func(_ *testing.T, opts datastore.Options) ds.Datastore {
			return datastore.NewDisk(opts)
		}},
		{name: "badger", durable: true, open: func(_ *testing.T, opts datastore.Options) ds.Datastore {
			return datastore.NewBadger(opts)
		}},
		{name: "sqlite", durable: true, open: func(_ *testing.T, opts datastore.Options) ds.Datastore {
			return datastore.NewSQLite(opts)
		}},
		{name: "cloud", durable: true, open: func(t *testing.T, opts datastore.Options) ds.Datastore {
			s3 := testutil.NewMockS3()
			store, err := datastore.NewCloud(blob.NewS3(s3, "test-bucket", "docstore"), false, opts)
			if err != nil {
				t.Fatalf("NewCloud() error = %v", err)
			}
			return store
		}},
	}
}

func testOptions(t *testing.T) datastore.Options {
	t.Helper()
	return datastore.Options{
		Directories: ds.NewDirectories(t.TempDir()),
		Filesystem:  testutil.NewMockFilesystemManager(),
		Clock:       testutil.FixedClock(),
		IDs:         testutil.NewStubIDGenerator(),
	}
}

// errorRecorder collects errors passed to an ErrorListener.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) listener(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// startDatastore initializes store and stops it when the test ends.
func startDatastore(t *testing.T, store ds.Datastore) *errorRecorder {
	t.Helper()
	rec := &errorRecorder{}
	if _, err := store.Init(context.Background(), rec.listener); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		store.Stop()
	})
	return rec
}

// batchRecorder is a listener that forwards every batch to a channel.
type batchRecorder struct {
	ch chan *ds.SnapshotBatch
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{ch: make(chan *ds.SnapshotBatch, 64)}
}

func (r *batchRecorder) listener(batch *ds.SnapshotBatch) error {
	r.ch <- batch
	return nil
}

func (r *batchRecorder) next(t *testing.T) *ds.SnapshotBatch {
	t.Helper()
	select {
	case b := <-r.ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return nil
	}
}

func (r *batchRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case b := <-r.ch:
		t.Fatalf("unexpected batch %s with %d events", b.ID, len(b.Events))
	default:
	}
}

func write(t *testing.T, store ds.Datastore, fingerprint, data string) {
	t.Helper()
	if err := store.Write(context.Background(), fingerprint, data, nil, ds.NewMutation()); err != nil {
		t.Fatalf("Write(%q) error = %v", fingerprint, err)
	}
}

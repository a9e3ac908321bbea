package datastore

import (
	"context"
	"os"
	"path/filepath"

	"docstore-go/internal/config"
	"docstore-go/internal/database"
	"docstore-go/internal/ds"
	"docstore-go/internal/kv"
)

// NewMemory creates a datastore that keeps everything in process memory.
// Records survive Stop and a later Init on the same value, but not the
// process. Nothing is written to the reported directories.
func NewMemory(opts Options) *Store {
	if opts.Directories == (ds.Directories{}) {
		opts.Directories = ds.NewDirectories(filepath.Join(os.TempDir(), "docstore"))
	}
	mem := kv.NewMemory()
	records := &kvRecords{
		scheme: "memory",
		open: func(context.Context) (kv.Store, error) {
			return mem, nil
		},
	}
	caps := ds.Capabilities{
		NetworkLayers: []string{"local"},
		LiveUpdates:   true,
	}
	return newStore("memory", records, nil, caps, opts)
}

// NewDisk creates a datastore that keeps records as plain files under
// opts.Directories.
func NewDisk(opts Options) *Store {
	s := newStore("disk", newDiskRecords(opts.Directories), nil, localDurable(), opts)
	s.makeDir = true
	return s
}

// NewBadger creates a datastore backed by BadgerDB in <DataDir>/badger.
func NewBadger(opts Options) *Store {
	dir := filepath.Join(opts.Directories.DataDir, "badger")
	records := &kvRecords{
		scheme: "badger",
		open: func(context.Context) (kv.Store, error) {
			return kv.NewBadger(kv.BadgerOptions{Dir: dir})
		},
	}
	s := newStore("badger", records, nil, localDurable(), opts)
	s.makeDir = true
	return s
}

// NewSQLite creates a datastore backed by SQLite in <DataDir>/docstore.db.
func NewSQLite(opts Options) *Store {
	opts = opts.withDefaults()
	dataDir := opts.Directories.DataDir
	records := &sqlRecords{
		open: func() (*database.SQLiteDatabase, error) {
			return database.NewDatabaseFromConfig(config.DatastoreConfig{Type: "sqlite"}, dataDir)
		},
		clock: opts.Clock,
	}
	s := newStore("sqlite", records, nil, localDurable(), opts)
	s.makeDir = true
	return s
}

func localDurable() ds.Capabilities {
	return ds.Capabilities{
		NetworkLayers: []string{"local"},
		Durable:       true,
		LiveUpdates:   true,
	}
}

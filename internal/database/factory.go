package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docstore-go/internal/config"
)

// FileName is the database file created inside the data directory.
const FileName = "docstore.db"

// NewDatabaseFromConfig opens the database backing a sqlite datastore.
func NewDatabaseFromConfig(cfg config.DatastoreConfig, dataDir string) (*SQLiteDatabase, error) {
	if cfg.Type != "sqlite" {
		return nil, fmt.Errorf("datastore type %q has no database", cfg.Type)
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data_dir required for sqlite datastore")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewSQLiteDatabase(filepath.Join(dataDir, FileName))
}

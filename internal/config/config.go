package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"docstore-go/internal/ds"
)

// Config represents the main configuration for docstore.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level,omitempty"` // "debug", "info" (default), "warn" or "error"
	Datastore  DatastoreConfig  `toml:"datastore"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig holds paths to the age key pair used to seal mirrored objects.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatastoreConfig selects and configures the datastore backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatastoreConfig struct {
	Type string `toml:"type"` // "memory", "disk", "badger", "sqlite" or "cloud"

	// Directory overrides. Empty fields default to subdirectories of base_dir.
	DataDir  string `toml:"data_dir,omitempty"`
	StashDir string `toml:"stash_dir,omitempty"`
	FilesDir string `toml:"files_dir,omitempty"`
	LogsDir  string `toml:"logs_dir,omitempty"`

	// Cloud-specific fields (only used when Type == "cloud")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	Encrypt           bool   `toml:"encrypt,omitempty"`
}

// DatastoreTypes lists the accepted values of DatastoreConfig.Type.
var DatastoreTypes = []string{"memory", "disk", "badger", "sqlite", "cloud"}

// Validate checks that the tagged union is consistent.
func (c DatastoreConfig) Validate() error {
	switch c.Type {
	case "memory", "disk", "badger", "sqlite":
		return nil
	case "cloud":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket required for cloud datastore")
		}
		return nil
	case "":
		return fmt.Errorf("datastore type not set")
	default:
		return fmt.Errorf("unknown datastore type: %s", c.Type)
	}
}

// Directories derives the datastore's working directories. Fields left
// empty in the config fall back to the standard layout under baseDir.
func (c DatastoreConfig) Directories(baseDir string) ds.Directories {
	dirs := ds.NewDirectories(baseDir)
	if c.DataDir != "" {
		dirs.DataDir = c.DataDir
	}
	if c.StashDir != "" {
		dirs.StashDir = c.StashDir
	}
	if c.FilesDir != "" {
		dirs.FilesDir = c.FilesDir
	}
	if c.LogsDir != "" {
		dirs.LogsDir = c.LogsDir
	}
	return dirs
}

// NewConfig creates a new Config for a disk datastore under baseDir, with
// default key paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Datastore: DatastoreConfig{Type: "disk"},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "docstore.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "docstore.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The config may carry S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Datastore.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

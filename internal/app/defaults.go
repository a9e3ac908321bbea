package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the default locations used when no config overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves default paths from the environment:
//   - DOCSTORE_CONFIG_PATH: config file (default $XDG_CONFIG_HOME/docstore.toml,
//     falling back to ~/.config/docstore.toml)
//   - DOCSTORE_HOME: base directory for docstore data (default
//     $XDG_DATA_HOME/docstore, falling back to ~/.local/share/docstore)
func GetDefaults() (*Defaults, error) {
	configPath, err := envPath("DOCSTORE_CONFIG_PATH", "XDG_CONFIG_HOME", []string{".config"}, "docstore.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envPath("DOCSTORE_HOME", "XDG_DATA_HOME", []string{".local", "share"}, "docstore")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envPath returns $override if set, else $xdg/name, else ~/<homeRel...>/name.
func envPath(override, xdg string, homeRel []string, name string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdg); dir != "" {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{homeDir}, homeRel...), name)...), nil
}

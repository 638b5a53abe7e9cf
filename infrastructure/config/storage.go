package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and configures the BlockStorage backend (spec §4.7:
// the filesystem backend is sufficient on its own; Postgres is optional).
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	FS       FSConfig       `yaml:"fs"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// FSConfig configures internal/storage/fs.
type FSConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// PostgresConfig configures internal/storage/postgres.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// DefaultStorageConfig is used when no storage.yaml is present: filesystem
// storage rooted at ./data.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{Backend: "fs", FS: FSConfig{BaseDir: "./data"}}
}

// LoadStorageConfig reads the optional storage.yaml backend-selection file.
// A missing file returns DefaultStorageConfig rather than an error.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultStorageConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}

	cfg := DefaultStorageConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}
	switch cfg.Backend {
	case "fs", "postgres":
	default:
		return nil, fmt.Errorf("storage config: unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStorageConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadStorageConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Backend)
	assert.Equal(t, "./data", cfg.FS.BaseDir)
}

func TestLoadStorageConfigParsesPostgresBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: postgres\npostgres:\n  dsn: postgres://localhost/monitor\n"), 0o644))

	cfg, err := LoadStorageConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, "postgres://localhost/monitor", cfg.Postgres.DSN)
}

func TestLoadStorageConfigRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: mongodb\n"), 0o644))

	_, err := LoadStorageConfig(path)
	assert.Error(t, err)
}

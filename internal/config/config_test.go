package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./uploads", cfg.Storage.Root)
	assert.Equal(t, 3, cfg.Storage.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Storage.RetryBaseDelay)
	assert.Equal(t, time.Minute, cfg.Storage.HealthTTL)
	assert.True(t, cfg.Storage.StartupRequired)
	assert.Equal(t, int64(10485760), cfg.Upload.MaxFileSize)
	assert.Empty(t, cfg.Reindexer.DSN)
	assert.Equal(t, "docintake", cfg.Reindexer.NamespacePrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
storage:
  root: /mnt/nfs/uploads
  retry_max_attempts: 5
upload:
  max_file_size: 5242880
reindexer:
  dsn: cproto://localhost:6534/docintake
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/mnt/nfs/uploads", cfg.Storage.Root)
	assert.Equal(t, 5, cfg.Storage.RetryMaxAttempts)
	assert.Equal(t, int64(5242880), cfg.Upload.MaxFileSize)
	assert.Equal(t, "cproto://localhost:6534/docintake", cfg.Reindexer.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Storage.RetryBaseDelay)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCINTAKE_STORAGE_ROOT", "/tmp/env-root")
	t.Setenv("DOCINTAKE_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env-root", cfg.Storage.Root)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload:\n  max_file_size: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_file_size")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

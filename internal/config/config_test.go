package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 1, cfg.Workers)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  kind: sqlite
  db_path: /tmp/runs.db
workers: 4
server:
  addr: 127.0.0.1:9000
  read_timeout: 5s
watch:
  debounce: 1s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "/tmp/runs.db", cfg.Store.DBPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "runs", cfg.ArtifactsDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 4\n"), 0o644))
	t.Setenv("ARMLOG_WORKERS", "8")
	t.Setenv("ARMLOG_ARTIFACTS_DIR", "/data/runs")
	t.Setenv("ARMLOG_ALLOWED_ORIGINS", "http://a, http://b,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "/data/runs", cfg.ArtifactsDir)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("ARMLOG_WORKERS", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARMLOG_WORKERS")
}

func TestValidateReportsFields(t *testing.T) {
	cfg := Default()
	cfg.Store.Kind = "postgres"
	cfg.Workers = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Store.Kind")
	assert.Contains(t, err.Error(), "Config.Workers")
	assert.Contains(t, err.Error(), "Config.LogLevel")
}

func TestValidateRequiresDBPathForSQLite(t *testing.T) {
	cfg := Default()
	cfg.Store = Store{Kind: "sqlite"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DBPath")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

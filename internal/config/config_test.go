package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
  read_timeout: 5s
decomposition:
  workers: 8
jobs:
  max_concurrent: 4
archive:
  dir: /tmp/archives
release:
  enabled: true
  schedule: "20 2 1 * *"
  repo_dir: /srv/repo
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 8, cfg.Decomposition.Workers)
	assert.Equal(t, 4, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, "/tmp/archives", cfg.Archive.Dir)
	assert.True(t, cfg.Release.Enabled)
	assert.Equal(t, "/srv/repo", cfg.Release.RepoDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `server: {}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 4, cfg.Decomposition.Workers)
	assert.Equal(t, 2, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, "20 2 1 * *", cfg.Release.Schedule)
	assert.Equal(t, "origin", cfg.Release.Remote)
	assert.Equal(t, "NDEMO_PAT_TOKEN", cfg.Release.TokenEnv)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Release.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Decomposition.Workers = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.RateLimit = -5
	assert.Error(t, cfg.Validate())
}

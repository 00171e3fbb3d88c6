package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "channel", cfg.Queue.Driver)
	assert.Equal(t, "memory", cfg.Events.Driver)
	assert.False(t, cfg.Reaper.Enabled)
	assert.Equal(t, "always", cfg.Reaper.Strategy)
	assert.Equal(t, "", cfg.Manifest.Path)
	assert.False(t, cfg.Operations.DockerRun.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKSCHEDULER_STORE_DRIVER", "sqlite")
	t.Setenv("TASKSCHEDULER_STORE_PATH", "/tmp/state.db")
	t.Setenv("TASKSCHEDULER_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/state.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKSCHEDULER_STORE_DRIVER", "etcd")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKSCHEDULER_STORE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn")
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/config.yaml", `
store:
  driver: sqlite
  path: ./state.db
reaper:
  enabled: true
  intervalSeconds: 5
`)

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Reaper.Enabled)
	assert.Equal(t, 5, cfg.Reaper.Interval)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the state directory at a temp dir and runs from an empty
// working directory so no stray .env is read.
func isolate(t *testing.T) string {
	t.Helper()
	state := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv("TSYNC_STATE_DIR", state)
	return state
}

func TestLoad_Defaults(t *testing.T) {
	state := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, state, cfg.StateDir)
	assert.Equal(t, filepath.Join(state, "cache.db"), cfg.Cache.Path)
	assert.Equal(t, filepath.Join(state, "offline"), cfg.Connectivity.Marker)
	assert.Equal(t, "online", cfg.Connectivity.Mode)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Remote.AutoMigrate)
	assert.False(t, cfg.Remote.Configured())
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Empty(t, cfg.File)
}

func TestLoad_FileThenEnv(t *testing.T) {
	state := isolate(t)

	file := filepath.Join(state, "tsync.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[remote]
driver = "sqlite"
dsn = "remote.db"
timeout = "3s"

[dashboard]
port = 9000
`), 0o644))

	t.Setenv("TSYNC_DASHBOARD_PORT", "9100")
	t.Setenv("TSYNC_CONNECTIVITY_MODE", "OFFLINE")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, file, cfg.File)
	assert.Equal(t, "sqlite", cfg.Remote.Driver)
	assert.Equal(t, "remote.db", cfg.Remote.DSN)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Remote.Configured())
	assert.Equal(t, 9100, cfg.Dashboard.Port)
	assert.Equal(t, "offline", cfg.Connectivity.Mode)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("TSYNC_REMOTE_DRIVER=postgres\nTSYNC_REMOTE_DSN=postgres://localhost/tasks\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("TSYNC_REMOTE_DRIVER")
		os.Unsetenv("TSYNC_REMOTE_DSN")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Remote.Driver)
	assert.Equal(t, "postgres://localhost/tasks", cfg.Remote.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"TSYNC_CONNECTIVITY_MODE": "satellite"}},
		{"probe without address", map[string]string{"TSYNC_CONNECTIVITY_MODE": "probe"}},
		{"port out of range", map[string]string{"TSYNC_DASHBOARD_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	state := isolate(t)

	_, err := Load(filepath.Join(state, "missing.toml"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	state := isolate(t)
	path := filepath.Join(state, "tsync.toml")

	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file must not be overwritten")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Connectivity.Interval)
	assert.Equal(t, filepath.Join(state, "cache.db"), cfg.Cache.Path)
}

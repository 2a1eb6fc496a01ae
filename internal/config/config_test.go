package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.json"))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, RetryManual, cfg.Sync.RetryPolicy)
		assert.Equal(t, 300, cfg.Sync.IntervalSeconds)
		assert.Equal(t, 10, cfg.Sync.PushTimeoutSeconds)
		assert.Equal(t, 2.0, cfg.Capture.MinTrailPointDistance)
		assert.Equal(t, time.Hour, cfg.MediaStorage.MaintenanceInterval())
		assert.Equal(t, time.Hour, cfg.MediaStorage.OrphanGrace())
		assert.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
		assert.False(t, cfg.UsePostgres())
		assert.True(t, filepath.IsAbs(cfg.MediaStorage.BasePath))
		assert.DirExists(t, cfg.MediaStorage.BasePath)
	})

	t.Run("yaml file with env override", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		path := filepath.Join(dir, "agent.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
serverAddress: ":9000"
sync:
  endpoint: https://example.supabase.co/functions/v1
  retryPolicy: AUTO
  maxAttempts: 7
  media:
    bucket: field-photos
network:
  probeUrl: https://example.supabase.co/health
`), 0644))
		t.Setenv("CONFIG_PATH", path)
		t.Setenv("SYNC_INTERVAL_SECONDS", "60")
		t.Setenv("MEDIA_STORAGE_PATH", filepath.Join(dir, "photos"))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.ServerAddress)
		assert.Equal(t, RetryAuto, cfg.Sync.RetryPolicy)
		assert.Equal(t, 7, cfg.Sync.MaxAttempts)
		assert.Equal(t, 60, cfg.Sync.IntervalSeconds)
		assert.True(t, cfg.Sync.Media.Enabled())
		assert.Equal(t, "us-east-1", cfg.Sync.Media.Region)
		assert.Equal(t, filepath.Join(dir, "photos"), cfg.MediaStorage.BasePath)
	})

	t.Run("json file", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"databaseUrl":"postgres://hub/fieldsync","sync":{"pushTimeoutSeconds":4}}`), 0644))
		t.Setenv("CONFIG_PATH", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.UsePostgres())
		assert.Equal(t, 4, cfg.Sync.PushTimeoutSeconds)
	})

	t.Run("dotenv file is read", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SYNC_ENDPOINT=https://from-dotenv.example\n"), 0644))
		t.Setenv("CONFIG_PATH", filepath.Join(dir, "none.json"))
		t.Setenv("SYNC_ENDPOINT", "")
		os.Unsetenv("SYNC_ENDPOINT")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://from-dotenv.example", cfg.Sync.Endpoint)
		os.Unsetenv("SYNC_ENDPOINT")
	})

	t.Run("invalid retry policy", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		t.Setenv("CONFIG_PATH", filepath.Join(dir, "none.json"))
		t.Setenv("SYNC_RETRY_POLICY", "sometimes")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
		t.Setenv("CONFIG_PATH", path)

		_, err := Load()
		assert.Error(t, err)
	})
}

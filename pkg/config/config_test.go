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
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":8081", cfg.Redirect.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 6, cfg.Code.Length)
	assert.Equal(t, 3*time.Second, cfg.QR.Timeout)
	assert.Equal(t, "http://localhost:8080/qr", cfg.Assets.BaseURL)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.URLs.BlockPrivate)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "shortlinks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
base_url: https://sho.rt/
storage:
  driver: memory
code:
  length: 8
qr:
  timeout: 500ms
stats:
  timezone: Europe/Berlin
`), 0o600))
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("SHORTLINKS_CODE_LENGTH", "7")
	t.Setenv("SHORTLINKS_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SHORTLINKS_URLS_BLOCK_PRIVATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://sho.rt", cfg.BaseURL)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 7, cfg.Code.Length, "environment beats file")
	assert.Equal(t, 500*time.Millisecond, cfg.QR.Timeout)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "https://sho.rt/qr", cfg.Assets.BaseURL)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.True(t, cfg.URLs.BlockPrivate)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHORTLINKS_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SHORTLINKS_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			BaseURL:  "https://sho.rt",
			Storage:  StorageConfig{Driver: DriverMemory},
			Code:     CodeConfig{Length: 6, MaxAttempts: 10},
			QR:       QRConfig{Timeout: time.Second},
			Clicks:   ClicksConfig{Workers: 1, QueueSize: 1},
			Stats:    StatsConfig{Timezone: "UTC"},
			Database: DatabaseConfig{URL: "postgres://x"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "sho.rt" }, wantErr: "base_url"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "storage.driver"},
		{name: "postgres without url", mutate: func(c *Config) {
			c.Storage.Driver = DriverPostgres
			c.Database.URL = ""
		}, wantErr: "database.url"},
		{name: "short codes", mutate: func(c *Config) { c.Code.Length = 2 }, wantErr: "code.length"},
		{name: "no attempts", mutate: func(c *Config) { c.Code.MaxAttempts = 0 }, wantErr: "code.max_attempts"},
		{name: "bad timezone", mutate: func(c *Config) { c.Stats.Timezone = "Mars/Base" }, wantErr: "stats.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

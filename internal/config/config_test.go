package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: sitewatch\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sitewatch", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8060, cfg.HTTP.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 90, cfg.Retention.RetentionDays)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.True(t, cfg.Validator.FetchTitles)
}

func TestLoadReadsFileValues(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
http:
  port: 9090
database:
  uri: postgres://localhost/sitewatch?sslmode=disable
fetcher:
  request_timeout: 20s
  max_attempts: 5
crawler:
  batch_sleep: 1500ms
retention:
  retention_days: 30
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "postgres://localhost/sitewatch?sslmode=disable", cfg.Database.URI)
	assert.Equal(t, "20s", cfg.Fetcher.RequestTimeout.String())
	assert.Equal(t, 5, cfg.Fetcher.MaxAttempts)
	assert.Equal(t, "1.5s", cfg.Crawler.BatchSleep.String())
	assert.Equal(t, 30, cfg.Retention.RetentionDays)
	assert.NoError(t, cfg.Validate())
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("SITEWATCH_DATABASE_URI", "postgres://env-host/sitewatch")

	path := writeConfig(t, "app:\n  name: sitewatch\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-host/sitewatch", cfg.Database.URI)
}

func TestValidateRejectsMissingSettings(t *testing.T) {
	cfg := &config.Config{}
	assert.Error(t, cfg.Validate())

	cfg.Database.URI = "postgres://localhost/sitewatch"
	assert.Error(t, cfg.Validate())

	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestExecutorConfigBundlesPhases(t *testing.T) {
	path := writeConfig(t, "fetcher:\n  max_attempts: 7\nvalidator:\n  batch_size: 4\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	execCfg := cfg.ExecutorConfig()
	assert.Equal(t, 7, execCfg.Fetcher.MaxAttempts)
	assert.Equal(t, 4, execCfg.Validator.BatchSize)
}

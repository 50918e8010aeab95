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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))
	return dir
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://www.tcmb.gov.tr/kurlar", cfg.Providers.Rates.BaseURL)
	assert.Equal(t, 4*time.Hour, cfg.Schedule.RateInterval)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.QuoteInterval)
	assert.Equal(t, 10, cfg.Providers.News.MaxItems)
	assert.Equal(t, ":8090", cfg.Server.ListenAddr)
	assert.True(t, cfg.Schedule.InitialLoad)
}

func TestLoad_ReadsTOMLFile(t *testing.T) {
	dir := writeConfig(t, `
[providers.rates]
base_url = "http://localhost:9999/rates"

[schedule]
quote_interval = "30s"
symbols = ["THYAO.IS", "GARAN.IS"]

[[feeds]]
category = "economy"
primary_url = "http://localhost:9999/rss"
backup_url = "http://localhost:9998/rss"
source_name = "Example Wire"

[notifications]
enabled = true

[notifications.webhook]
enabled = true
url = "http://localhost:9999/hook"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/rates", cfg.Providers.Rates.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Schedule.QuoteInterval)
	assert.Equal(t, []string{"THYAO.IS", "GARAN.IS"}, cfg.Schedule.Symbols)

	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "economy", cfg.Feeds[0].Category)
	assert.Equal(t, "http://localhost:9998/rss", cfg.Feeds[0].BackupURL)

	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "http://localhost:9999/hook", cfg.Notifications.Webhook.URL)

	// defaults still fill the unset sections
	assert.Equal(t, 4*time.Hour, cfg.Schedule.RateInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MINTSTACK_DB_PATH", "/tmp/override.db")
	t.Setenv("MINTSTACK_LISTEN_ADDR", ":9100")
	t.Setenv("MINTSTACK_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, ":9100", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_RejectsFeedWithoutPrimaryURL(t *testing.T) {
	dir := writeConfig(t, `
[[feeds]]
category = "economy"
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary_url")
}

func TestValidate_RejectsNonPositiveIntervals(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Schedule.QuoteInterval = 0
	assert.Error(t, cfg.Validate())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "greenos", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "greenos:notifications:alerts", cfg.Alerts.Notify.AlertsChannel)
	assert.Equal(t, "greenos:notifications:sensors", cfg.Alerts.Notify.SensorsChannel)
	assert.Equal(t, "greenos:user:", cfg.Alerts.Notify.UserKeyPrefix)
	assert.Equal(t, 86400, cfg.Alerts.Notify.UserCacheTTL)

	assert.Equal(t, "greenos:farm:", cfg.Alerts.Cache.ActiveKeyPrefix)
	assert.Equal(t, 30, cfg.Alerts.Cache.ActiveTTL)

	assert.Equal(t, "greenos:readings", cfg.Alerts.Stream.Name)
	assert.Equal(t, "greenos-alerts", cfg.Alerts.Stream.Group)
	assert.Equal(t, 10, cfg.Alerts.Stream.BatchSize)

	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, "@every 5m", cfg.Jobs.StaleSensorCron)
	assert.Equal(t, 15, cfg.Jobs.StaleAfterMinutes)
	assert.Equal(t, 90, cfg.Jobs.RetentionDays)
	assert.Equal(t, 24, cfg.Jobs.ReportWindowHours)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_PORT", "15432")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("READINGS_CONSUMER", "worker-7")
	os.Setenv("JOBS_ENABLED", "false")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "worker-7", cfg.Alerts.Stream.Consumer)
	assert.False(t, cfg.Jobs.Enabled)
}

func TestLoad_YAMLOverride(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
http:
  addr: ":7070"
alerts:
  cache:
    active_key_prefix: "test:farm:"
    active_ttl: 10
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	os.Setenv("CONFIG_FILE", path)
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "test:farm:", cfg.Alerts.Cache.ActiveKeyPrefix)
	assert.Equal(t, 10, cfg.Alerts.Cache.ActiveTTL)
	// 未覆盖的保持默认
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoad_InvalidEnvIntFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PORT", "not-a-number")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

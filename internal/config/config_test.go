package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearFleetEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLEET_DATA_DIR", "FLEET_CREDENTIALS_PATH", "FLEET_LOG_LEVEL", "FLEET_LOG_PRETTY",
		"FLEET_HTTP_PORT", "FLEET_DEV_MODE", "FLEET_WEBHOOK_PASSPHRASE",
		"FLEET_BOOTSTRAP_DEBUG_PORT", "FLEET_PROBE_TIMEOUT", "FLEET_HEALTH_CHECK_PERIOD",
		"FLEET_RECOVERY_DEADLINE", "FLEET_DISPATCH_WORKERS",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_DataDir_DefaultWhenNotSet(t *testing.T) {
	clearFleetEnv(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Chdir(t.TempDir())
	defer t.Chdir(cwd)

	cfg, err := Load()
	require.NoError(t, err)

	abs, err := filepath.Abs("./data")
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8088, cfg.HTTPPort)
}

func TestLoad_DataDir_FromEnv(t *testing.T) {
	clearFleetEnv(t)
	tmp := t.TempDir()
	os.Setenv("FLEET_DATA_DIR", tmp)
	defer os.Unsetenv("FLEET_DATA_DIR")

	cfg, err := Load()
	require.NoError(t, err)

	abs, err := filepath.Abs(tmp)
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.DataDir)
}

func TestLoad_HealthCheckPeriod_Override(t *testing.T) {
	clearFleetEnv(t)
	os.Setenv("FLEET_DATA_DIR", t.TempDir())
	os.Setenv("FLEET_HEALTH_CHECK_PERIOD", "5s")
	defer clearFleetEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5s", cfg.HealthCheckPeriod.String())
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearFleetEnv(t)
	os.Setenv("FLEET_DATA_DIR", t.TempDir())
	os.Setenv("FLEET_PROBE_TIMEOUT", "not-a-duration")
	defer clearFleetEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3s", cfg.ProbeTimeout.String())
}

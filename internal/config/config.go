// Package config loads the fleet's process-wide configuration from
// environment variables, backed by godotenv for local .env loading,
// rather than a flags-only or file-only scheme.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved, immutable configuration for one run of
// the fleet supervisor process.
type Config struct {
	DataDir           string
	CredentialsPath   string
	LogLevel          string
	LogPretty         bool
	HTTPPort          int
	DevMode           bool
	WebhookPassphrase string

	ChromePath      string
	AppURL          string
	SessionPortBase int

	BootstrapDebugPort int
	ProbeTimeout       time.Duration
	HealthCheckPeriod  time.Duration
	RecoveryDeadline   time.Duration
	PhaseBudget        time.Duration
	DispatchWorkers    int
	ProbeFanout        int

	BackupRetentionDays int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from the environment, applying a `.env`
// file in the current directory first if one is present (errors from
// a missing .env are ignored, matching godotenv.Load's typical usage
// in development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := firstNonEmpty(os.Getenv("FLEET_DATA_DIR"), "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		CredentialsPath:   firstNonEmpty(os.Getenv("FLEET_CREDENTIALS_PATH"), filepath.Join(absDataDir, "credentials.env")),
		LogLevel:          firstNonEmpty(os.Getenv("FLEET_LOG_LEVEL"), "info"),
		LogPretty:         envBool("FLEET_LOG_PRETTY", false),
		HTTPPort:          envInt("FLEET_HTTP_PORT", 8088),
		DevMode:           envBool("FLEET_DEV_MODE", false),
		WebhookPassphrase: os.Getenv("FLEET_WEBHOOK_PASSPHRASE"),

		ChromePath:      firstNonEmpty(os.Getenv("CHROME_PATH"), "/usr/bin/google-chrome"),
		AppURL:          firstNonEmpty(os.Getenv("FLEET_APP_URL"), "https://trader.example.com/"),
		SessionPortBase: envInt("FLEET_SESSION_PORT_BASE", 9301),

		BootstrapDebugPort: envInt("FLEET_BOOTSTRAP_DEBUG_PORT", 9000),
		ProbeTimeout:       envDuration("FLEET_PROBE_TIMEOUT", 3*time.Second),
		HealthCheckPeriod:  envDuration("FLEET_HEALTH_CHECK_PERIOD", 10*time.Second),
		RecoveryDeadline:   envDuration("FLEET_RECOVERY_DEADLINE", 30*time.Second),
		PhaseBudget:        envDuration("FLEET_PHASE_BUDGET", 60*time.Second),
		DispatchWorkers:    envInt("FLEET_DISPATCH_WORKERS", 4),
		ProbeFanout:        envInt("FLEET_PROBE_FANOUT", 4),

		BackupRetentionDays: envInt("FLEET_BACKUP_RETENTION_DAYS", 90),

		R2AccountID:       os.Getenv("FLEET_R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("FLEET_R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("FLEET_R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("FLEET_R2_BUCKET"),
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

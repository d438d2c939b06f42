package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	HashPartitionCount       int
	PartitionLookaheadMonths int
	BackfillBatchSize        int
	ParityBatchSize          int
	RetireRetentionDays      int
	WorkerPollInterval       time.Duration

	EnableProvisioner    bool
	EnableBackfillRunner bool
	EnableParityRunner   bool
	EnableOutboxRelay    bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "parthenon"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		HashPartitionCount:       envInt("HASH_PARTITION_COUNT", 16),
		PartitionLookaheadMonths: envInt("PARTITION_LOOKAHEAD_MONTHS", 2),
		BackfillBatchSize:        envInt("BACKFILL_BATCH_SIZE", 500),
		ParityBatchSize:          envInt("PARITY_BATCH_SIZE", 500),
		RetireRetentionDays:      envInt("RETIRE_RETENTION_DAYS", 90),
		WorkerPollInterval:       envDuration("WORKER_POLL_INTERVAL", 2*time.Second),

		EnableProvisioner:    envBool("ENABLE_PARTITION_PROVISIONER", true),
		EnableBackfillRunner: envBool("ENABLE_BACKFILL_RUNNER", true),
		EnableParityRunner:   envBool("ENABLE_PARITY_RUNNER", true),
		EnableOutboxRelay:    envBool("ENABLE_OUTBOX_RELAY", true),
	}, nil
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

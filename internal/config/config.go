package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database dialects.
const (
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"
	MetricsBoth       = "both"
	MetricsNone       = "none"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	LogFormat   string

	HTTPAddr string
	RunLocal bool

	DBType        string
	DBPath        string
	DBDSN         string
	DBLockTimeout time.Duration
	DBMaxOpenConn int

	QueueURL             string
	ProjectionTable      string
	ProcessedEventsTable string

	MetricsBackend   string
	MetricsNamespace string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// Load reads configuration from the environment, after applying an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_NAME", "orderflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		RunLocal: getenvBool("RUN_LOCAL", false),

		DBType:        normalizeDBType(getenv("DATABASE_TYPE", DBTypeSQLite)),
		DBPath:        getenv("DATABASE_PATH", "./orders.db"),
		DBDSN:         strings.TrimSpace(getenv("DATABASE_DSN", "")),
		DBLockTimeout: getenvMillis("DATABASE_LOCK_TIMEOUT_MS", 5*time.Second),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 8),

		QueueURL:             getenv("ORDERS_QUEUE_URL", ""),
		ProjectionTable:      getenv("PROJECTION_TABLE", "order-projections"),
		ProcessedEventsTable: getenv("PROCESSED_EVENTS_TABLE", "processed-events"),

		MetricsBackend:   normalizeMetricsBackend(getenv("METRICS_BACKEND", MetricsPrometheus)),
		MetricsNamespace: getenv("METRICS_NAMESPACE", "OrderFlow"),

		OutboxPollInterval: getenvMillis("OUTBOX_POLL_INTERVAL_MS", time.Second),
		OutboxBatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 50),
	}
}

func normalizeDBType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case DBTypePostgres, "postgresql", "pg":
		return DBTypePostgres
	default:
		return DBTypeSQLite
	}
}

func normalizeMetricsBackend(v string) string {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case MetricsPrometheus, MetricsCloudWatch, MetricsBoth, MetricsNone:
		return v
	default:
		return MetricsPrometheus
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvMillis(key string, fallback time.Duration) time.Duration {
	ms := getenvInt(key, 0)
	if ms == 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

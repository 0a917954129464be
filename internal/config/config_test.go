package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_TYPE", "DATABASE_PATH", "DATABASE_LOCK_TIMEOUT_MS", "RUN_LOCAL", "METRICS_BACKEND", "OUTBOX_BATCH_SIZE"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, DBTypeSQLite, cfg.DBType)
	assert.Equal(t, "./orders.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.DBLockTimeout)
	assert.False(t, cfg.RunLocal)
	assert.Equal(t, MetricsPrometheus, cfg.MetricsBackend)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "PostgreSQL")
	t.Setenv("DATABASE_DSN", " host=db user=app ")
	t.Setenv("DATABASE_LOCK_TIMEOUT_MS", "250")
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("METRICS_BACKEND", "Both")
	t.Setenv("OUTBOX_BATCH_SIZE", "-3")

	cfg := Load()

	assert.Equal(t, DBTypePostgres, cfg.DBType)
	assert.Equal(t, "host=db user=app", cfg.DBDSN)
	assert.Equal(t, 250*time.Millisecond, cfg.DBLockTimeout)
	assert.True(t, cfg.RunLocal)
	assert.Equal(t, MetricsBoth, cfg.MetricsBackend)
	assert.Equal(t, 50, cfg.OutboxBatchSize, "non-positive values fall back to the default")
}

// Package app holds the startup wiring shared by the binaries under cmd/.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
	"github.com/imrishuroy/go-exactly-once-orders/internal/config"
	"github.com/imrishuroy/go-exactly-once-orders/internal/idempotency"
	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// Models lists every table owned by the SQL store.
func Models() []any {
	return []any{
		&idempotency.Record{},
		&orders.Order{},
		&orders.LedgerEntry{},
		&outbox.Event{},
	}
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config, service string) (*zap.Logger, error) {
	return logger.New(logger.Config{
		ServiceName: service,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
}

// OpenStore connects to the configured SQL store and migrates the schema.
func OpenStore(cfg config.Config, log *zap.Logger) (*storage.Engine, error) {
	engine, err := storage.Open(storage.Options{
		Dialect:      cfg.DBType,
		Path:         cfg.DBPath,
		DSN:          cfg.DBDSN,
		LockTimeout:  cfg.DBLockTimeout,
		MaxOpenConns: cfg.DBMaxOpenConn,
		Logger:       logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, err
	}
	if err := engine.AutoMigrate(Models()...); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// Recorders is the metrics fan-out for a process. CloudWatch is set when the
// backend publishes there and must be flushed by the caller.
type Recorders struct {
	Recorder   metrics.Recorder
	CloudWatch *aws.MetricsRecorder
}

// NewRecorders builds the recorders selected by cfg.MetricsBackend.
// cw may be nil when CloudWatch is not selected.
func NewRecorders(cfg config.Config, reg prometheus.Registerer, cw aws.CloudWatchAPI) (Recorders, error) {
	var out Recorders
	var fan metrics.Multi

	if cfg.MetricsBackend == config.MetricsPrometheus || cfg.MetricsBackend == config.MetricsBoth {
		p, err := metrics.NewPrometheus(reg, cfg.AppName)
		if err != nil {
			return out, fmt.Errorf("register prometheus metrics: %w", err)
		}
		fan = append(fan, p)
	}
	if cfg.MetricsBackend == config.MetricsCloudWatch || cfg.MetricsBackend == config.MetricsBoth {
		if cw == nil {
			return out, fmt.Errorf("metrics backend %q needs a cloudwatch client", cfg.MetricsBackend)
		}
		out.CloudWatch = aws.NewMetricsRecorder(cw, cfg.MetricsNamespace)
		fan = append(fan, out.CloudWatch)
	}

	switch len(fan) {
	case 0:
		out.Recorder = metrics.Nop{}
	case 1:
		out.Recorder = fan[0]
	default:
		out.Recorder = fan
	}
	return out, nil
}

// NeedsAWS reports whether cfg selects any AWS-backed component.
func NeedsAWS(cfg config.Config) bool {
	return cfg.QueueURL != "" ||
		cfg.MetricsBackend == config.MetricsCloudWatch ||
		cfg.MetricsBackend == config.MetricsBoth
}

// WorkflowOptions returns the order workflow options for cfg. Events are only
// written to the outbox when a queue is configured to relay them.
func WorkflowOptions(cfg config.Config, sink orders.EventSink) []orders.WorkflowOption {
	if cfg.QueueURL == "" || sink == nil {
		return nil
	}
	return []orders.WorkflowOption{orders.WithEventSink(sink)}
}

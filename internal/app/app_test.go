package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
	"github.com/imrishuroy/go-exactly-once-orders/internal/config"
	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

type nopCloudWatch struct{}

func (nopCloudWatch) PutMetricData(context.Context, *cloudwatch.PutMetricDataInput, ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestOpenStore_MigratesAllTables(t *testing.T) {
	cfg := config.Config{
		DBType:        config.DBTypeSQLite,
		DBPath:        filepath.Join(t.TempDir(), "app.db"),
		DBMaxOpenConn: 2,
	}
	engine, err := OpenStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	for _, table := range []string{"idempotency_records", "orders", "ledger_entries", "outbox_events"} {
		assert.True(t, engine.DB().Migrator().HasTable(table), table)
	}

	// migrating twice is harmless
	require.NoError(t, engine.AutoMigrate(Models()...))
}

func tableDDL(t *testing.T, engine *storage.Engine, table string) string {
	t.Helper()
	var ddl string
	require.NoError(t, engine.DB().Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl).Error)
	require.NotEmpty(t, ddl, table)
	return ddl
}

func TestOpenStore_LedgerEntriesReferenceOrders(t *testing.T) {
	cfg := config.Config{
		DBType: config.DBTypeSQLite,
		DBPath: filepath.Join(t.TempDir(), "fk.db"),
	}
	engine, err := OpenStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	assert.Contains(t, tableDDL(t, engine, "ledger_entries"), "REFERENCES `orders`(`order_id`)")
	assert.NotContains(t, tableDDL(t, engine, "orders"), "REFERENCES")

	// an order and its ledger entry can be written through the workflow
	wf := orders.NewWorkflow(orders.NewStore(engine.DB()))
	err = engine.Do(context.Background(), func(tx *gorm.DB) error {
		_, _, err := wf.CreateOrder(context.Background(), tx, orders.CreateOrderInput{CustomerID: "c1", ItemID: "i1", Quantity: 1})
		return err
	})
	require.NoError(t, err)
}

func TestNewRecorders(t *testing.T) {
	cases := []struct {
		backend   string
		wantCW    bool
		checkType func(t *testing.T, r metrics.Recorder)
	}{
		{config.MetricsNone, false, func(t *testing.T, r metrics.Recorder) { assert.IsType(t, metrics.Nop{}, r) }},
		{config.MetricsPrometheus, false, func(t *testing.T, r metrics.Recorder) { assert.IsType(t, &metrics.Prometheus{}, r) }},
		{config.MetricsCloudWatch, true, func(t *testing.T, r metrics.Recorder) { assert.IsType(t, &aws.MetricsRecorder{}, r) }},
		{config.MetricsBoth, true, func(t *testing.T, r metrics.Recorder) { assert.IsType(t, metrics.Multi{}, r) }},
	}
	for _, tc := range cases {
		t.Run(tc.backend, func(t *testing.T) {
			cfg := config.Config{AppName: "test", MetricsBackend: tc.backend, MetricsNamespace: "Test"}
			recs, err := NewRecorders(cfg, prometheus.NewRegistry(), nopCloudWatch{})
			require.NoError(t, err)
			tc.checkType(t, recs.Recorder)
			assert.Equal(t, tc.wantCW, recs.CloudWatch != nil)
		})
	}
}

func TestNewRecorders_CloudWatchNeedsClient(t *testing.T) {
	cfg := config.Config{MetricsBackend: config.MetricsCloudWatch}
	_, err := NewRecorders(cfg, prometheus.NewRegistry(), nil)
	assert.Error(t, err)
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, NeedsAWS(config.Config{MetricsBackend: config.MetricsPrometheus}))
	assert.True(t, NeedsAWS(config.Config{MetricsBackend: config.MetricsPrometheus, QueueURL: "https://sqs/q"}))
	assert.True(t, NeedsAWS(config.Config{MetricsBackend: config.MetricsBoth}))
}

func TestWorkflowOptions_SinkOnlyWithQueue(t *testing.T) {
	cfg := config.Config{
		DBType: config.DBTypeSQLite,
		DBPath: filepath.Join(t.TempDir(), "sink.db"),
	}
	engine, err := OpenStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	sink := outbox.NewStore(engine.DB())
	createOne := func(cfg config.Config) {
		wf := orders.NewWorkflow(orders.NewStore(engine.DB()), WorkflowOptions(cfg, sink)...)
		require.NoError(t, engine.Do(context.Background(), func(tx *gorm.DB) error {
			_, _, err := wf.CreateOrder(context.Background(), tx, orders.CreateOrderInput{CustomerID: "c", ItemID: "i", Quantity: 1})
			return err
		}))
	}

	createOne(cfg)
	pending, err := sink.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	cfg.QueueURL = "https://sqs.us-east-1.amazonaws.com/123/orders"
	createOne(cfg)
	pending, err = sink.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

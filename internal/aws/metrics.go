package aws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerCall keeps PutMetricData requests well under the service limits.
const maxDatumsPerCall = 20

type datumKey struct {
	metric    string
	dimension string
	value     string
}

// MetricsRecorder aggregates counters in memory and publishes them to
// CloudWatch on Flush.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time

	mu     sync.Mutex
	counts map[datumKey]float64
}

// NewMetricsRecorder returns a recorder publishing under namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
		counts:    map[datumKey]float64{},
	}
}

// ObserveOutcome counts one idempotency outcome.
func (r *MetricsRecorder) ObserveOutcome(outcome string) {
	r.add(datumKey{metric: "IdempotencyOutcome", dimension: "Outcome", value: outcome})
}

// ObserveEvent counts one order event lifecycle step.
func (r *MetricsRecorder) ObserveEvent(kind string) {
	r.add(datumKey{metric: "OrderEvent", dimension: "Kind", value: kind})
}

func (r *MetricsRecorder) add(k datumKey) {
	r.mu.Lock()
	r.counts[k]++
	r.mu.Unlock()
}

// Flush publishes and resets the pending counters. Counters that fail to
// publish are kept for the next flush.
func (r *MetricsRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.counts
	r.counts = map[datumKey]float64{}
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	keys := make([]datumKey, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].value < keys[j].value
	})

	now := r.nowFunc()
	for start := 0; start < len(keys); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(keys))
		data := make([]cwtypes.MetricDatum, 0, end-start)
		for _, k := range keys[start:end] {
			data = append(data, cwtypes.MetricDatum{
				MetricName: sdkaws.String(k.metric),
				Dimensions: []cwtypes.Dimension{{Name: sdkaws.String(k.dimension), Value: sdkaws.String(k.value)}},
				Value:      sdkaws.Float64(pending[k]),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  sdkaws.Time(now),
			})
		}

		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  sdkaws.String(r.namespace),
			MetricData: data,
		})
		if err != nil {
			r.restore(keys[start:], pending)
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func (r *MetricsRecorder) restore(keys []datumKey, pending map[datumKey]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.counts[k] += pending[k]
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *MetricsRecorder) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Flush(flushCtx); err != nil && onError != nil {
				onError(err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

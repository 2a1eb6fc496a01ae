package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}

func TestSyncMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	m, err := NewSyncMetrics()
	require.NoError(t, err)

	t.Run("pending gauge keeps the last value", func(t *testing.T) {
		m.RecordPass(ctx, "partial", 4)
		m.RecordPass(ctx, "ok", 1)

		gauge, ok := collect(t, reader, "sync.pending.records").(metricdata.Gauge[int64])
		require.True(t, ok)
		require.Len(t, gauge.DataPoints, 1)
		assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
	})

	t.Run("pushes and deletes counted by outcome", func(t *testing.T) {
		m.RecordPush(ctx, "photo", "synced", 5*time.Millisecond)
		m.RecordPush(ctx, "photo", "deleted", time.Millisecond)
		m.RecordPush(ctx, "trail", "deleted", time.Millisecond)

		sum, ok := collect(t, reader, "sync.record.count").(metricdata.Sum[int64])
		require.True(t, ok)
		byOutcome := map[string]int64{}
		for _, dp := range sum.DataPoints {
			outcome, _ := dp.Attributes.Value("outcome")
			byOutcome[outcome.AsString()] += dp.Value
		}
		assert.Equal(t, map[string]int64{"synced": 1, "deleted": 2}, byOutcome)
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var none *SyncMetrics
		assert.NotPanics(t, func() {
			none.RecordPass(ctx, "ok", 0)
			none.RecordPush(ctx, "photo", "synced", 0)
		})
	})
}

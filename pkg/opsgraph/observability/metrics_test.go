package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a manual-reader meter provider for the test.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("error shutting down meter provider: %v", err)
		}
	})

	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumForAttr(sum metricdata.Sum[int64], key, value string) (int64, bool) {
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == key && attr.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestRecordNodeExecution(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordNodeExecution(ctx, "process", 50*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "process", 10*time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)

	executions := findMetric(rm, "opsgraph.node.executions")
	require.NotNil(t, executions)
	sum, ok := executions.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	count, found := sumForAttr(sum, "node_id", "process")
	require.True(t, found)
	assert.Equal(t, int64(2), count)

	nodeErrors := findMetric(rm, "opsgraph.node.errors")
	require.NotNil(t, nodeErrors)
	errSum, ok := nodeErrors.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	errCount, found := sumForAttr(errSum, "node_id", "process")
	require.True(t, found)
	assert.Equal(t, int64(1), errCount)

	latency := findMetric(rm, "opsgraph.node.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordGraphRun(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordGraphRun(ctx, true, 200*time.Millisecond)
	m.RecordGraphRun(ctx, false, 50*time.Millisecond)

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "opsgraph.graph.runs")
	require.NotNil(t, runs)

	sum, ok := runs.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
}

func TestRecordRetryExhausted(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordRetryExhausted(context.Background(), "deploy")

	rm := collectMetrics(t, reader)
	exhausted := findMetric(rm, "opsgraph.retry.exhausted")
	require.NotNil(t, exhausted)

	sum, ok := exhausted.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	count, found := sumForAttr(sum, "node_id", "deploy")
	require.True(t, found)
	assert.Equal(t, int64(1), count)
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

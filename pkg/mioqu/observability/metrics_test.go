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

// setupMetricsTest creates a test meter provider and returns its reader.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}
	return reader, cleanup
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
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

// sumFor returns the int64 sum recorded for queue, or false if there is none.
func sumFor(t *testing.T, rm *metricdata.ResourceMetrics, name, queue string) (int64, bool) {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0, false
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum type for %s", name)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("queue"); ok && v.AsString() == queue {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordMessage(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordMessage(ctx, "q-msg", 3*time.Millisecond)
	m.RecordMessage(ctx, "q-msg", time.Millisecond)

	rm := collectMetrics(t, reader)
	count, ok := sumFor(t, rm, "mioqu.dispatch.messages", "q-msg")
	require.True(t, ok)
	assert.Equal(t, int64(2), count)

	latency := findMetric(rm, "mioqu.dispatch.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 4.0, hist.DataPoints[0].Sum, 0.001)
}

func TestRecordRegistrations(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordRegister(ctx, "q-reg")
	m.RecordRegister(ctx, "q-reg")
	m.RecordRegister(ctx, "q-reg")
	m.RecordUnregister(ctx, "q-reg")

	rm := collectMetrics(t, reader)

	regs, ok := sumFor(t, rm, "mioqu.processors.registrations", "q-reg")
	require.True(t, ok)
	assert.Equal(t, int64(3), regs)

	unregs, ok := sumFor(t, rm, "mioqu.processors.unregistrations", "q-reg")
	require.True(t, ok)
	assert.Equal(t, int64(1), unregs)

	live, ok := sumFor(t, rm, "mioqu.processors.live", "q-reg")
	require.True(t, ok)
	assert.Equal(t, int64(2), live)
}

func TestRecordTimeout(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordTimeout(ctx, "q-timer", false)
	m.RecordTimeout(ctx, "q-timer", false)
	m.RecordTimeout(ctx, "q-timer", true)

	rm := collectMetrics(t, reader)

	fired, ok := sumFor(t, rm, "mioqu.dispatch.timeouts", "q-timer")
	require.True(t, ok)
	assert.Equal(t, int64(2), fired)

	stale, ok := sumFor(t, rm, "mioqu.dispatch.stale_timeouts", "q-timer")
	require.True(t, ok)
	assert.Equal(t, int64(1), stale)
}

func TestRecordInvalidToken(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordInvalidToken(context.Background(), "q-bad", "process")

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "mioqu.dispatch.invalid_tokens")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	op, ok := sum.DataPoints[0].Attributes.Value("operation")
	require.True(t, ok)
	assert.Equal(t, "process", op.AsString())
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records queue metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordMessage records one user message handed to the handler and the
	// time the handler spent on it.
	RecordMessage(ctx context.Context, queue string, duration time.Duration)

	// RecordRegister records a processor registration.
	RecordRegister(ctx context.Context, queue string)

	// RecordUnregister records a processor removal.
	RecordUnregister(ctx context.Context, queue string)

	// RecordTimeout records an expired timer. stale is true when the timer's
	// processor no longer exists.
	RecordTimeout(ctx context.Context, queue string, stale bool)

	// RecordInvalidToken records an event addressed to a dead token.
	RecordInvalidToken(ctx context.Context, queue string, op string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	messages        metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	registrations   metric.Int64Counter
	unregistrations metric.Int64Counter
	liveProcessors  metric.Int64UpDownCounter
	timeouts        metric.Int64Counter
	staleTimeouts   metric.Int64Counter
	invalidTokens   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance on the global provider.
func newOtelMetrics() (*otelMetrics, error) {
	return newOtelMetricsFrom(otel.GetMeterProvider())
}

func newOtelMetricsFrom(mp metric.MeterProvider) (*otelMetrics, error) {
	meter := mp.Meter("mioqu")

	messages, err := meter.Int64Counter("mioqu.dispatch.messages",
		metric.WithDescription("Number of user messages dispatched to the handler"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("mioqu.dispatch.latency_ms",
		metric.WithDescription("Handler time per user message in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	registrations, err := meter.Int64Counter("mioqu.processors.registrations",
		metric.WithDescription("Number of processor registrations"),
	)
	if err != nil {
		return nil, err
	}

	unregistrations, err := meter.Int64Counter("mioqu.processors.unregistrations",
		metric.WithDescription("Number of processor removals"),
	)
	if err != nil {
		return nil, err
	}

	liveProcessors, err := meter.Int64UpDownCounter("mioqu.processors.live",
		metric.WithDescription("Number of registered processors"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter("mioqu.dispatch.timeouts",
		metric.WithDescription("Number of timers delivered to the handler"),
	)
	if err != nil {
		return nil, err
	}

	staleTimeouts, err := meter.Int64Counter("mioqu.dispatch.stale_timeouts",
		metric.WithDescription("Number of timers dropped because their processor was removed"),
	)
	if err != nil {
		return nil, err
	}

	invalidTokens, err := meter.Int64Counter("mioqu.dispatch.invalid_tokens",
		metric.WithDescription("Number of events addressed to a token with no live processor"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		messages:        messages,
		dispatchLatency: dispatchLatency,
		registrations:   registrations,
		unregistrations: unregistrations,
		liveProcessors:  liveProcessors,
		timeouts:        timeouts,
		staleTimeouts:   staleTimeouts,
		invalidTokens:   invalidTokens,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromProvider returns a MetricsRecorder bound to mp instead
// of the global provider.
func NewMetricsRecorderFromProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetricsFrom(mp)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func queueAttr(queue string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

// RecordMessage records a dispatched user message.
func (m *otelMetrics) RecordMessage(ctx context.Context, queue string, duration time.Duration) {
	opt := queueAttr(queue)
	m.messages.Add(ctx, 1, opt)
	m.dispatchLatency.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

// RecordRegister records a processor registration.
func (m *otelMetrics) RecordRegister(ctx context.Context, queue string) {
	opt := queueAttr(queue)
	m.registrations.Add(ctx, 1, opt)
	m.liveProcessors.Add(ctx, 1, opt)
}

// RecordUnregister records a processor removal.
func (m *otelMetrics) RecordUnregister(ctx context.Context, queue string) {
	opt := queueAttr(queue)
	m.unregistrations.Add(ctx, 1, opt)
	m.liveProcessors.Add(ctx, -1, opt)
}

// RecordTimeout records a delivered or dropped timer.
func (m *otelMetrics) RecordTimeout(ctx context.Context, queue string, stale bool) {
	if stale {
		m.staleTimeouts.Add(ctx, 1, queueAttr(queue))
		return
	}
	m.timeouts.Add(ctx, 1, queueAttr(queue))
}

// RecordInvalidToken records an event addressed to a dead token.
func (m *otelMetrics) RecordInvalidToken(ctx context.Context, queue string, op string) {
	m.invalidTokens.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("operation", op),
	))
}

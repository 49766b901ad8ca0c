package observability

import (
	"context"
	"time"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordMessage does nothing.
func (NoopMetrics) RecordMessage(_ context.Context, _ string, _ time.Duration) {}

// RecordRegister does nothing.
func (NoopMetrics) RecordRegister(_ context.Context, _ string) {}

// RecordUnregister does nothing.
func (NoopMetrics) RecordUnregister(_ context.Context, _ string) {}

// RecordTimeout does nothing.
func (NoopMetrics) RecordTimeout(_ context.Context, _ string, _ bool) {}

// RecordInvalidToken does nothing.
func (NoopMetrics) RecordInvalidToken(_ context.Context, _ string, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartProcessSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProcessSpan(ctx context.Context, _ string, _ reactor.Token) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}

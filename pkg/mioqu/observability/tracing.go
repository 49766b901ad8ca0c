package observability

import (
	"context"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the mioqu tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("mioqu")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartProcessSpan starts a span for one user message handled on the
	// reactor goroutine. ctx carries the producer's span, if any.
	StartProcessSpan(ctx context.Context, queue string, token reactor.Token) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer("mioqu")}
}

// NewSpanManagerFromProvider returns a SpanManager bound to tp instead of the
// global provider.
func NewSpanManagerFromProvider(tp trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: tp.Tracer("mioqu")}
}

// StartProcessSpan starts a span for one user message.
func (m *otelSpanManager) StartProcessSpan(ctx context.Context, queue string, token reactor.Token) (context.Context, trace.Span) {
	return startProcessSpan(ctx, m.tracer, queue, token)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartProcessSpan starts a consumer span for one user message.
// Uses the global OTel tracer.
func StartProcessSpan(ctx context.Context, queue string, token reactor.Token) (context.Context, trace.Span) {
	return startProcessSpan(ctx, tracer, queue, token)
}

func startProcessSpan(ctx context.Context, t trace.Tracer, queue string, token reactor.Token) (context.Context, trace.Span) {
	return t.Start(ctx, "mioqu.process",
		trace.WithAttributes(
			attribute.String("queue.id", queue),
			attribute.Int("processor.index", token.Index()),
			attribute.Int64("processor.generation", int64(token.Generation())),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

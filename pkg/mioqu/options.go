package mioqu

import (
	"log/slog"
	"time"

	"github.com/inre/mioqu/pkg/mioqu/config"
	"github.com/inre/mioqu/pkg/mioqu/observability"
)

// options holds configuration for Run.
type options struct {
	name           string
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	startupTimeout time.Duration
}

// defaultOptions returns the default queue configuration.
func defaultOptions() options {
	return options{
		name:           "mioqu",
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		startupTimeout: 5 * time.Second,
	}
}

// Option configures Run.
type Option func(*options)

// WithName sets the queue name used in logs and metric attributes.
// Default: "mioqu"
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. The queue adds queue_id and queue fields.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics on the global meter provider.
//
// Example:
//
//	otel.SetMeterProvider(provider)
//	binding, err := mioqu.Run[P, M, R, T](loop, handler, mioqu.WithMetrics(true))
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		if enabled {
			o.metrics = observability.NewMetricsRecorder()
		} else {
			o.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets the metrics recorder directly.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracing enables a mioqu.process span per user message on the global
// tracer provider.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		if enabled {
			o.spans = observability.NewSpanManager()
		} else {
			o.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets the span manager directly and enables tracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *options) {
		if sm != nil {
			o.spans = sm
			o.tracingEnabled = true
		}
	}
}

// WithStartupTimeout bounds how long Run waits for the reactor goroutine to
// acknowledge startup.
// Default: 5s
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.startupTimeout = d
		}
	}
}

// OptionsFromConfig maps the keys name, startup_timeout, metrics and tracing
// onto options. Missing keys keep their defaults.
func OptionsFromConfig(cfg config.Config) []Option {
	var opts []Option
	if cfg.Has("name") {
		opts = append(opts, WithName(cfg.String("name", "")))
	}
	if cfg.Has("startup_timeout") {
		opts = append(opts, WithStartupTimeout(cfg.Duration("startup_timeout", 0)))
	}
	if cfg.Has("metrics") {
		opts = append(opts, WithMetrics(cfg.Bool("metrics", false)))
	}
	if cfg.Has("tracing") {
		opts = append(opts, WithTracing(cfg.Bool("tracing", false)))
	}
	return opts
}

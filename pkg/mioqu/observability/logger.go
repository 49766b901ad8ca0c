// Package observability provides logging, metrics, and tracing for mioqu
// queues.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
)

// EnrichLogger adds queue context to a logger.
// Returns a new logger with queue_id and queue fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, id, "counters")
//	enriched.Info("doing work") // includes queue_id, queue
func EnrichLogger(logger *slog.Logger, queueID, name string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("queue_id", queueID),
		slog.String("queue", name),
	)
}

// TokenAttrs returns the log attributes describing a token.
func TokenAttrs(token reactor.Token) []any {
	return []any{
		slog.Int("index", token.Index()),
		slog.Uint64("generation", uint64(token.Generation())),
	}
}

// LogQueueStart logs that the dispatcher goroutine entered the reactor loop.
func LogQueueStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("queue started")
}

// LogQueueStop logs that the reactor loop returned.
func LogQueueStop(logger *slog.Logger, err error, uptime time.Duration, live int) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.Float64("uptime_ms", float64(uptime.Milliseconds())),
		slog.Int("live_processors", live),
	}
	if err != nil {
		logger.Error("queue stopped", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Info("queue stopped", attrs...)
}

// LogRegister logs a processor registration.
func LogRegister(logger *slog.Logger, token reactor.Token, live int) {
	if logger == nil {
		return
	}
	logger.Debug("processor registered",
		append(TokenAttrs(token), slog.Int("live_processors", live))...,
	)
}

// LogUnregister logs a processor removal. removed is false when the token did
// not address a live processor.
func LogUnregister(logger *slog.Logger, token reactor.Token, removed bool, live int) {
	if logger == nil {
		return
	}
	if !removed {
		logger.Warn("unregister of unknown processor", TokenAttrs(token)...)
		return
	}
	logger.Debug("processor unregistered",
		append(TokenAttrs(token), slog.Int("live_processors", live))...,
	)
}

// LogInvalidToken logs an event addressed to a token with no live processor.
func LogInvalidToken(logger *slog.Logger, op string, token reactor.Token, err error) {
	if logger == nil {
		return
	}
	logger.Error("invalid token",
		append(TokenAttrs(token),
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)...,
	)
}

// LogStaleTimeout logs a timer that expired after its processor was removed.
func LogStaleTimeout(logger *slog.Logger, token reactor.Token) {
	if logger == nil {
		return
	}
	logger.Debug("stale timeout dropped", TokenAttrs(token)...)
}

// LogHandlerPanic logs a recovered handler panic together with its stack.
func LogHandlerPanic(logger *slog.Logger, op string, token reactor.Token, value any, stack string) {
	if logger == nil {
		return
	}
	logger.Error("handler panicked",
		append(TokenAttrs(token),
			slog.String("operation", op),
			slog.Any("panic", value),
			slog.String("stack", stack),
		)...,
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

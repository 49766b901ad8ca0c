package mioqu

import (
	"errors"
	"fmt"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"github.com/inre/mioqu/pkg/mioqu/registry"
)

// Sentinel errors surfaced by Run, Binding and Callback.
var (
	// ErrQueueOutOfService indicates the reactor goroutine is unreachable or
	// has stopped.
	ErrQueueOutOfService = errors.New("queue out of service")

	// ErrChannelSend indicates a reply could not be delivered.
	ErrChannelSend = errors.New("channel send failed")

	// ErrChannelReceive indicates a reply channel closed without a value.
	ErrChannelReceive = errors.New("channel receive failed")

	// ErrCallbackConsumed indicates Reply or Fail was called on a callback
	// that already delivered.
	ErrCallbackConsumed = errors.New("callback already consumed")

	// ErrInvalidToken indicates an event addressed to a token with no live
	// processor.
	ErrInvalidToken = registry.ErrInvalidToken
)

// TokenError describes why a token did not resolve to a live processor.
// It unwraps to ErrInvalidToken.
type TokenError = registry.TokenError

// IoError wraps a failure of the reactor's poller or loop.
type IoError struct {
	// Op is the operation that failed ("create", "run").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *IoError) Error() string {
	return fmt.Sprintf("io %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *IoError) Unwrap() error {
	return e.Err
}

// NotifyError wraps a failed send on the reactor's notification channel.
type NotifyError struct {
	// Reason is "full" or "closed".
	Reason string
	// Err is the underlying reactor error.
	Err error
}

// Error implements the error interface.
func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NotifyError) Unwrap() error {
	return e.Err
}

// PanicError captures a handler panic recovered on the reactor goroutine.
type PanicError struct {
	// Op is the handler callback that panicked.
	Op string
	// Token is the processor the callback ran for; zero for Tick.
	Token Token
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Op, e.Value)
}

// ResponseError is a domain error a handler returns inside its response
// payload. The queue never inspects it.
type ResponseError string

// Error implements the error interface.
func (e ResponseError) Error() string {
	return string(e)
}

// AsResponseError reports whether err carries a ResponseError.
func AsResponseError(err error) (ResponseError, bool) {
	var re ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return "", false
}

// deliveryError converts a reactor send failure. A closed loop means the queue
// is gone; a full channel is reported as is so callers can back off.
func deliveryError(err error) error {
	switch {
	case errors.Is(err, reactor.ErrLoopClosed):
		return fmt.Errorf("%w: %w", ErrQueueOutOfService, &NotifyError{Reason: "closed", Err: err})
	case errors.Is(err, reactor.ErrChannelFull):
		return &NotifyError{Reason: "full", Err: err}
	default:
		return &NotifyError{Reason: "unknown", Err: err}
	}
}

// IsRetryable reports whether err is a transient delivery failure: the
// notification channel was full. Sending again later may succeed. The queue
// never retries on its own.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrQueueOutOfService) {
		return false
	}
	var notifyErr *NotifyError
	return errors.As(err, &notifyErr) && notifyErr.Reason == "full"
}

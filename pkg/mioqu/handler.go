package mioqu

import (
	"log/slog"
	"time"
)

// Handler is the user logic of a queue. P is the processor state, M the
// message payload, R the reply payload and T the timer payload.
//
// Every method runs on the reactor goroutine, one call at a time, so
// processors need no locking. The *P passed in is valid only for the
// duration of the call.
type Handler[P, M, R, T any] interface {
	// Ready delivers readiness for a file descriptor registered under token.
	Ready(loop Loop[T], token Token, processor *P, events EventSet)

	// Process delivers a user message. The handler must eventually consume
	// cb: reply now, keep it and reply from a later callback, or drop it
	// when cb.IsNone().
	Process(loop Loop[T], token Token, processor *P, msg M, cb *Callback[R])

	// Timeout delivers a timer armed with Loop.Timeout. Timers never re-arm
	// on their own.
	Timeout(loop Loop[T], token Token, processor *P, payload T)

	// Tick runs once per reactor iteration.
	Tick(loop Loop[T])
}

// BaseHandler implements every Handler method as a no-op. Embed it and
// override what you need.
type BaseHandler[P, M, R, T any] struct{}

// Ready does nothing.
func (BaseHandler[P, M, R, T]) Ready(Loop[T], Token, *P, EventSet) {}

// Process drops the message and its callback.
func (BaseHandler[P, M, R, T]) Process(Loop[T], Token, *P, M, *Callback[R]) {}

// Timeout does nothing.
func (BaseHandler[P, M, R, T]) Timeout(Loop[T], Token, *P, T) {}

// Tick does nothing.
func (BaseHandler[P, M, R, T]) Tick(Loop[T]) {}

// Loop is the reactor surface available to handler callbacks. Its methods
// must only be called from inside a callback.
type Loop[T any] interface {
	// Timeout arms a one-shot timer delivered to Handler.Timeout for token
	// at or after delay.
	Timeout(token Token, payload T, delay time.Duration) error

	// Register starts readiness polling of fd for token. Registrations are
	// dropped when the processor under token is unregistered; closing fd
	// stays the handler's job.
	Register(fd int, token Token, interest EventSet) error

	// Reregister changes the token or interest of a registered fd.
	Reregister(fd int, token Token, interest EventSet) error

	// Deregister stops polling fd.
	Deregister(fd int) error

	// Shutdown stops the queue after the current iteration.
	Shutdown()

	// Logger returns the queue logger.
	Logger() *slog.Logger
}

package mioqu

import (
	"context"
	"errors"
	"fmt"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"go.opentelemetry.io/otel/trace"
)

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Binding is the producer handle of a queue. It is a small value: copies
// share the queue and may be used from any goroutine. Messages sent through
// one goroutine arrive in send order; there is no order across goroutines.
//
// The zero Binding is out of service.
type Binding[P, M, R any] struct {
	tx    reactor.Sender[Message[P, M, R]]
	state *queueState
}

// ID returns the queue instance id, also logged as queue_id.
func (b Binding[P, M, R]) ID() string {
	if b.state == nil {
		return ""
	}
	return b.state.id
}

// Send queues msg for the processor under token. Delivery failure is
// returned: an error wrapping ErrQueueOutOfService when the queue has
// stopped, or a *NotifyError when the channel is full.
func (b Binding[P, M, R]) Send(token Token, msg M, cb *Callback[R]) error {
	return b.send(userMessage[P, M, R](token, msg, cb, trace.SpanContext{}))
}

// SendContext is Send carrying the span in ctx, so the queue's process span
// continues the caller's trace.
func (b Binding[P, M, R]) SendContext(ctx context.Context, token Token, msg M, cb *Callback[R]) error {
	return b.send(userMessage[P, M, R](token, msg, cb, trace.SpanContextFromContext(ctx)))
}

// Register adds processor to the queue and blocks until the reactor has
// assigned its token.
func (b Binding[P, M, R]) Register(processor P) (Token, error) {
	return b.RegisterContext(context.Background(), processor)
}

// RegisterContext is Register bounded by ctx. If ctx ends first, a token
// assigned afterwards is unregistered again.
func (b Binding[P, M, R]) RegisterContext(ctx context.Context, processor P) (Token, error) {
	reply := make(chan Token, 1)
	if err := b.send(registerMessage[P, M, R](processor, reply)); err != nil {
		if errors.Is(err, ErrQueueOutOfService) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: register: %w", ErrQueueOutOfService, err)
	}

	select {
	case token, ok := <-reply:
		if !ok {
			return 0, ErrQueueOutOfService
		}
		return token, nil
	case <-b.Done():
		select {
		case token, ok := <-reply:
			if ok {
				return token, nil
			}
		default:
		}
		return 0, ErrQueueOutOfService
	case <-ctx.Done():
		go func() {
			if token, ok := <-reply; ok {
				b.Unregister(token)
			}
		}()
		return 0, ctx.Err()
	}
}

// Unregister removes the processor under token. It never fails: a stopped
// queue has no processors left to remove.
func (b Binding[P, M, R]) Unregister(token Token) {
	_ = b.send(unregisterMessage[P, M, R](token))
}

// Call sends msg with a direct-channel callback and waits for the reply.
func (b Binding[P, M, R]) Call(ctx context.Context, token Token, msg M) (R, error) {
	cb, pending := ChannelCallback[R]()
	if err := b.SendContext(ctx, token, msg, cb); err != nil {
		var zero R
		return zero, err
	}
	return pending.Wait(ctx)
}

// Notifier returns a Notifier that feeds replies back into this queue as
// messages for token, built by wrap. Use it with NotifyCallback to chain
// processors without leaving the reactor.
func (b Binding[P, M, R]) Notifier(token Token, wrap func(R) M) Notifier[R] {
	return bindingNotifier[P, M, R]{b: b, token: token, wrap: wrap}
}

// Shutdown asks the reactor to stop after its current iteration. Messages
// still queued are failed with ErrQueueOutOfService.
func (b Binding[P, M, R]) Shutdown() {
	if b.state != nil {
		b.state.shutdown()
	}
}

// Done is closed once the reactor goroutine has stopped.
func (b Binding[P, M, R]) Done() <-chan struct{} {
	if b.state == nil {
		return closedDone
	}
	return b.state.stopped
}

// Err returns why the queue stopped: nil after a clean Shutdown, a
// *PanicError after a handler panic, an *IoError if polling failed.
// It returns nil while the queue is running.
func (b Binding[P, M, R]) Err() error {
	select {
	case <-b.Done():
		if b.state == nil {
			return ErrQueueOutOfService
		}
		return b.state.err
	default:
		return nil
	}
}

func (b Binding[P, M, R]) send(msg Message[P, M, R]) error {
	if msg.kind == messageUser {
		msg.callback.bind(b.Done())
	}
	if err := b.tx.Send(msg); err != nil {
		return deliveryError(err)
	}
	return nil
}

// Wait is the act-and-wait helper: it sends msg to token and blocks until
// the handler replies.
func Wait[P, M, R any](ctx context.Context, b Binding[P, M, R], token Token, msg M) (R, error) {
	return b.Call(ctx, token, msg)
}

type bindingNotifier[P, M, R any] struct {
	b     Binding[P, M, R]
	token Token
	wrap  func(R) M
}

func (n bindingNotifier[P, M, R]) Send(r R) error {
	return n.b.Send(n.token, n.wrap(r), nil)
}

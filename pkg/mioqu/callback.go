package mioqu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Notifier receives replies that re-enter a reactor. reactor.Sender
// satisfies it, as does Binding.Notifier.
type Notifier[R any] interface {
	Send(R) error
}

type callbackKind uint8

const (
	callbackNone callbackKind = iota
	callbackChannel
	callbackNotify
)

type outcome[R any] struct {
	value R
	err   error
}

// rendezvous is shared by a direct-channel Callback and its Pending. The
// queue a callback is sent to binds its done channel so a waiter learns when
// no reply can come anymore.
type rendezvous[R any] struct {
	ch    chan outcome[R]
	once  sync.Once
	bound chan struct{} // closed once done is set
	done  <-chan struct{}
}

func newRendezvous[R any]() *rendezvous[R] {
	return &rendezvous[R]{
		ch:    make(chan outcome[R], 1),
		bound: make(chan struct{}),
	}
}

// bind records the done channel of the queue the callback travels through.
// Only the first call has an effect.
func (r *rendezvous[R]) bind(done <-chan struct{}) {
	r.once.Do(func() {
		r.done = done
		close(r.bound)
	})
}

// Callback is a one-shot reply target handed to Handler.Process. It is a
// direct channel read through a Pending, a Notifier, or nothing. A nil
// *Callback behaves like NoCallback.
//
// The handler may reply immediately or keep the callback and reply from a
// later Timeout or Ready. Reply and Fail are safe from any goroutine.
type Callback[R any] struct {
	kind     callbackKind
	rv       *rendezvous[R]
	notifier Notifier[R]
	consumed atomic.Bool
}

// ChannelCallback returns a direct-channel callback and the Pending that
// receives its reply.
func ChannelCallback[R any]() (*Callback[R], *Pending[R]) {
	rv := newRendezvous[R]()
	return &Callback[R]{kind: callbackChannel, rv: rv}, &Pending[R]{rv: rv}
}

// NotifyCallback returns a callback that forwards its reply to n.
func NotifyCallback[R any](n Notifier[R]) *Callback[R] {
	return &Callback[R]{kind: callbackNotify, notifier: n}
}

// NoCallback returns a callback that discards its reply.
func NoCallback[R any]() *Callback[R] {
	return &Callback[R]{}
}

// Reply delivers value. It returns ErrCallbackConsumed if the callback
// already delivered, and an error wrapping ErrChannelSend if a Notifier
// rejects the value. Replying to a direct channel never blocks.
func (c *Callback[R]) Reply(value R) error {
	if c == nil {
		return nil
	}
	if !c.consumed.CompareAndSwap(false, true) {
		return ErrCallbackConsumed
	}
	switch c.kind {
	case callbackChannel:
		c.rv.ch <- outcome[R]{value: value}
		close(c.rv.ch)
	case callbackNotify:
		if err := c.notifier.Send(value); err != nil {
			return fmt.Errorf("%w: %w", ErrChannelSend, err)
		}
	}
	return nil
}

// Fail consumes the callback without a value. A waiting Pending observes
// err wrapped in ErrChannelReceive; Notifier and no-op callbacks drop it.
func (c *Callback[R]) Fail(err error) error {
	if c == nil {
		return nil
	}
	if !c.consumed.CompareAndSwap(false, true) {
		return ErrCallbackConsumed
	}
	if c.kind == callbackChannel {
		c.rv.ch <- outcome[R]{err: err}
		close(c.rv.ch)
	}
	return nil
}

// bind ties a direct-channel callback to the lifetime of a queue.
func (c *Callback[R]) bind(done <-chan struct{}) {
	if c != nil && c.kind == callbackChannel {
		c.rv.bind(done)
	}
}

// Consumed reports whether Reply or Fail has been called.
func (c *Callback[R]) Consumed() bool {
	return c != nil && c.consumed.Load()
}

// IsNone reports whether replies are discarded.
func (c *Callback[R]) IsNone() bool {
	return c == nil || c.kind == callbackNone
}

// Pending is the receiving end of a ChannelCallback.
type Pending[R any] struct {
	rv *rendezvous[R]
}

// Wait blocks until the reply arrives, ctx ends, or the queue the request
// was sent to stops. A stopped queue, a callback failed by the queue or a
// second Wait returns an error wrapping ErrChannelReceive; the first also
// wraps ErrQueueOutOfService.
func (p *Pending[R]) Wait(ctx context.Context) (R, error) {
	var zero R
	bound := p.rv.bound
	var done <-chan struct{}
	for {
		select {
		case out, ok := <-p.rv.ch:
			return p.unpack(out, ok)
		case <-bound:
			done, bound = p.rv.done, nil
		case <-done:
			// A reply may have raced the shutdown.
			select {
			case out, ok := <-p.rv.ch:
				return p.unpack(out, ok)
			default:
			}
			return zero, fmt.Errorf("%w: %w", ErrChannelReceive, ErrQueueOutOfService)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (p *Pending[R]) unpack(out outcome[R], ok bool) (R, error) {
	var zero R
	if !ok {
		return zero, ErrChannelReceive
	}
	if out.err != nil {
		return zero, fmt.Errorf("%w: %w", ErrChannelReceive, out.err)
	}
	return out.value, nil
}

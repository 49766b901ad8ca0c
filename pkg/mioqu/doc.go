/*
Package mioqu runs actor-style processors on a single reactor goroutine.

# Overview

A queue owns one reactor: a goroutine locked to its OS thread that polls
file descriptors, drains a notification channel and fires timers. Every
processor registered with the queue lives in a slot on that goroutine and
is only ever touched by the queue's Handler, one callback at a time, so
processor state needs no locking.

Producers talk to the queue through a Binding. Register adds a processor
and returns its Token; Send and Call deliver messages to it; Unregister
frees the slot for reuse.

# Basic Usage

Implement Handler (embed BaseHandler for the callbacks you don't need),
create a loop and run it:

	type Storage struct{ Value int }

	type Query struct {
	    Save  bool
	    Value int
	}

	type StorageHandler struct {
	    mioqu.BaseHandler[Storage, Query, int, struct{}]
	}

	func (StorageHandler) Process(loop mioqu.Loop[struct{}], token mioqu.Token,
	    s *Storage, q Query, cb *mioqu.Callback[int]) {
	    if q.Save {
	        s.Value = q.Value
	    }
	    _ = cb.Reply(s.Value)
	}

	func main() {
	    loop, err := mioqu.NewLoop[Storage, Query, int, struct{}](reactor.DefaultConfig())
	    if err != nil {
	        log.Fatal(err)
	    }
	    binding, err := mioqu.Run[Storage, Query, int, struct{}](loop, StorageHandler{})
	    if err != nil {
	        log.Fatal(err)
	    }
	    defer binding.Shutdown()

	    token, _ := binding.Register(Storage{Value: 13})
	    v, err := mioqu.Wait(ctx, binding, token, Query{Save: true, Value: 18})
	    fmt.Println(v, err) // 18 <nil>
	}

# Callbacks

Process receives a *Callback. Reply exactly once, either right away or
later from Timeout or Ready after storing the callback in the processor.
ChannelCallback pairs a callback with a Pending the producer waits on;
NotifyCallback forwards the reply to a Notifier, such as another queue's
Binding.Notifier; NoCallback discards it. A second Reply returns
ErrCallbackConsumed.

# Timers

Loop.Timeout arms a one-shot timer for a processor. Timers do not repeat:
re-arm from Handler.Timeout for periodic work. A timer whose processor was
unregistered, or whose slot has since been reused, is dropped.

# Tokens

A Token packs a slot index with a generation. Freed slots are reused
most recent first, and each reuse bumps the generation, so a token held
past Unregister never reaches the new occupant of its slot. Messages for
such tokens fail their callback with a *TokenError.

# Observability

	binding, err := mioqu.Run[P, M, R, T](loop, handler,
	    mioqu.WithName("storage"),
	    mioqu.WithLogger(logger),
	    mioqu.WithMetrics(true),
	    mioqu.WithTracing(true))

Logs carry queue_id and queue fields, plus index and generation for
processor events. Metrics are mioqu.dispatch.* and mioqu.processors.*.
Tracing adds a mioqu.process span per message, continuing the producer's
span when the message was sent with SendContext.

# Error Handling

	_, err := binding.Call(ctx, token, msg)
	switch {
	case errors.Is(err, mioqu.ErrQueueOutOfService):
	    // reactor stopped
	case errors.Is(err, mioqu.ErrInvalidToken):
	    // processor gone
	}

A handler panic is recovered as a *PanicError and takes the queue out of
service; Binding.Err reports it once Binding.Done is closed.

# Thread Safety

  - Binding IS safe for concurrent use; copies share the queue
  - Callback.Reply and Callback.Fail ARE safe from any goroutine
  - Loop is NOT; use it only inside handler callbacks

# Subpackages

  - reactor: poller, notification channel and timers
  - registry: generational slot registry
  - config: YAML/JSON configuration
  - observability: logging, metrics and tracing helpers
*/
package mioqu

package mioqu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/inre/mioqu/pkg/mioqu/observability"
	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"github.com/inre/mioqu/pkg/mioqu/registry"
	"go.opentelemetry.io/otel/trace"
)

// queueState is shared by a dispatcher and every copy of its Binding.
type queueState struct {
	id       string
	stopped  chan struct{}
	err      error // set before stopped closes
	shutdown func()
}

// NewLoop creates a reactor whose message and timer types fit a queue over
// Handler[P, M, R, T].
func NewLoop[P, M, R, T any](cfg reactor.Config) (*reactor.Loop[Message[P, M, R], Timeout[T]], error) {
	l, err := reactor.New[Message[P, M, R], Timeout[T]](cfg)
	if err != nil {
		return nil, &IoError{Op: "create", Err: err}
	}
	return l, nil
}

// Run starts a queue: it spawns the reactor goroutine, locks it to its OS
// thread and returns a Binding once the reactor has acknowledged startup.
// Any failure before the acknowledgment, including a startup timeout,
// returns an error wrapping ErrQueueOutOfService. A loop can be run once.
//
// Example:
//
//	loop, _ := mioqu.NewLoop[Counter, Task, int, struct{}](reactor.DefaultConfig())
//	binding, err := mioqu.Run[Counter, Task, int, struct{}](loop, &CounterHandler{})
//	token, err := binding.Register(Counter{Period: 190 * time.Millisecond})
func Run[P, M, R, T any](loop *reactor.Loop[Message[P, M, R], Timeout[T]], handler Handler[P, M, R, T], opts ...Option) (Binding[P, M, R], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if loop == nil || handler == nil {
		return Binding[P, M, R]{}, fmt.Errorf("%w: nil loop or handler", ErrQueueOutOfService)
	}

	state := &queueState{
		id:       uuid.NewString(),
		stopped:  make(chan struct{}),
		shutdown: loop.Shutdown,
	}
	logger := observability.EnrichLogger(o.logger, state.id, o.name)
	d := &dispatcher[P, M, R, T]{
		handler:    handler,
		processors: registry.New[Token, P](),
		view:       &loopView[P, M, R, T]{loop: loop, logger: logger},
		state:      state,
		name:       o.name,
		logger:     logger,
		metrics:    o.metrics,
		spans:      o.spans,
		tracing:    o.tracingEnabled,
	}

	ack := make(chan struct{})
	exited := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		exited <- d.run(loop, ack)
	}()

	timer := time.NewTimer(o.startupTimeout)
	defer timer.Stop()

	select {
	case <-ack:
		// The queue may already have stopped again, e.g. a handler panic in
		// the first iteration.
		select {
		case <-state.stopped:
			if state.err == nil {
				return Binding[P, M, R]{}, ErrQueueOutOfService
			}
			return Binding[P, M, R]{}, fmt.Errorf("%w: %w", ErrQueueOutOfService, state.err)
		default:
		}
		return Binding[P, M, R]{tx: loop.Channel(), state: state}, nil
	case err := <-exited:
		if err == nil {
			return Binding[P, M, R]{}, ErrQueueOutOfService
		}
		return Binding[P, M, R]{}, fmt.Errorf("%w: %w", ErrQueueOutOfService, err)
	case <-timer.C:
		loop.Shutdown()
		return Binding[P, M, R]{}, fmt.Errorf("%w: no startup acknowledgment within %s", ErrQueueOutOfService, o.startupTimeout)
	}
}

// dispatcher is the reactor's only sink. It owns the processor registry and
// the handler and runs exclusively on the reactor goroutine.
type dispatcher[P, M, R, T any] struct {
	handler    Handler[P, M, R, T]
	processors *registry.Registry[Token, P]
	view       *loopView[P, M, R, T]
	state      *queueState

	name    string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool

	// failure is the first handler panic; it becomes the queue's terminal error.
	failure error
}

// run owns the loop for the queue's lifetime. Initialize is posted only
// after the loop is claimed, so no other dispatcher can acknowledge it.
func (d *dispatcher[P, M, R, T]) run(loop *reactor.Loop[Message[P, M, R], Timeout[T]], ack chan<- struct{}) error {
	elapsed := observability.TimedOperation()
	started := false
	var startErr error

	runErr := loop.RunWith(d, func() error {
		if err := loop.Channel().Send(initializeMessage[P, M, R](ack)); err != nil {
			startErr = deliveryError(err)
			return startErr
		}
		started = true
		observability.LogQueueStart(d.logger)
		return nil
	})

	var err error
	switch {
	case startErr != nil:
		err = startErr
	case errors.Is(runErr, reactor.ErrLoopClosed):
		err = deliveryError(runErr)
	case errors.Is(runErr, reactor.ErrAlreadyRunning):
		err = runErr
	case runErr != nil:
		err = &IoError{Op: "run", Err: runErr}
	case d.failure != nil:
		err = d.failure
	}

	if started {
		observability.LogQueueStop(d.logger, err, elapsed(), d.processors.Len())
	}
	d.stop(err)
	return err
}

func (d *dispatcher[P, M, R, T]) stop(err error) {
	d.state.err = err
	close(d.state.stopped)
}

// Ready routes readiness to the processor registered under token. Polling
// is level-triggered, so fds left behind by a dead processor are dropped.
func (d *dispatcher[P, M, R, T]) Ready(l *reactor.Loop[Message[P, M, R], Timeout[T]], token Token, events EventSet) {
	p, err := d.processors.Get(token)
	if err != nil {
		d.invalidToken("ready", token, err)
		d.dropRegistrations(l, token)
		return
	}
	_ = d.guard("ready", token, func() {
		d.handler.Ready(d.view, token, p, events)
	})
}

// Notify applies control messages to the registry and routes user messages
// to Handler.Process.
func (d *dispatcher[P, M, R, T]) Notify(_ *reactor.Loop[Message[P, M, R], Timeout[T]], msg Message[P, M, R]) {
	switch msg.kind {
	case messageInitialize:
		close(msg.ack)

	case messageRegister:
		token := d.processors.Add(msg.processor)
		d.metrics.RecordRegister(context.Background(), d.name)
		observability.LogRegister(d.logger, token, d.processors.Len())
		msg.reply <- token

	case messageUnregister:
		removed := d.processors.Remove(msg.token)
		if removed {
			d.metrics.RecordUnregister(context.Background(), d.name)
			d.dropRegistrations(d.view.loop, msg.token)
		}
		observability.LogUnregister(d.logger, msg.token, removed, d.processors.Len())

	default:
		d.process(msg)
	}
}

func (d *dispatcher[P, M, R, T]) process(msg Message[P, M, R]) {
	p, err := d.processors.Get(msg.token)
	if err != nil {
		d.invalidToken("process", msg.token, err)
		_ = msg.callback.Fail(err)
		return
	}

	ctx := context.Background()
	var span trace.Span
	if d.tracing {
		if msg.span.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, msg.span)
		}
		ctx, span = d.spans.StartProcessSpan(ctx, d.state.id, msg.token)
	}

	elapsed := observability.TimedOperation()
	perr := d.guard("process", msg.token, func() {
		d.handler.Process(d.view, msg.token, p, msg.payload, msg.callback)
	})
	d.metrics.RecordMessage(ctx, d.name, elapsed())

	if perr != nil {
		_ = msg.callback.Fail(fmt.Errorf("%w: %w", ErrQueueOutOfService, perr))
	}
	if d.tracing {
		d.spans.EndSpanWithError(span, perr)
	}
}

// Timeout routes an expired timer. A timer whose processor was removed, or
// whose slot now holds a newer processor, is dropped.
func (d *dispatcher[P, M, R, T]) Timeout(_ *reactor.Loop[Message[P, M, R], Timeout[T]], t Timeout[T]) {
	p, err := d.processors.Get(t.Token)
	if err != nil {
		d.metrics.RecordTimeout(context.Background(), d.name, true)
		observability.LogStaleTimeout(d.logger, t.Token)
		return
	}
	d.metrics.RecordTimeout(context.Background(), d.name, false)
	_ = d.guard("timeout", t.Token, func() {
		d.handler.Timeout(d.view, t.Token, p, t.Payload)
	})
}

// Tick forwards the end of a reactor iteration.
func (d *dispatcher[P, M, R, T]) Tick(_ *reactor.Loop[Message[P, M, R], Timeout[T]]) {
	_ = d.guard("tick", 0, func() {
		d.handler.Tick(d.view)
	})
}

// Discard fails whatever was still queued when the reactor stopped.
func (d *dispatcher[P, M, R, T]) Discard(msg Message[P, M, R]) {
	switch msg.kind {
	case messageRegister:
		close(msg.reply)
	case messageUser:
		_ = msg.callback.Fail(ErrQueueOutOfService)
	}
}

// guard runs a handler callback. A panic is logged, stops the loop and is
// returned as a *PanicError.
func (d *dispatcher[P, M, R, T]) guard(op string, token Token, fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			pe := &PanicError{
				Op:    op,
				Token: token,
				Value: v,
				Stack: string(debug.Stack()),
			}
			observability.LogHandlerPanic(d.logger, op, token, v, pe.Stack)
			if d.failure == nil {
				d.failure = pe
			}
			d.view.loop.Shutdown()
			err = pe
		}
	}()
	fn()
	return nil
}

func (d *dispatcher[P, M, R, T]) dropRegistrations(l *reactor.Loop[Message[P, M, R], Timeout[T]], token Token) {
	if n := l.DeregisterToken(token); n > 0 {
		d.logger.Debug("fd registrations dropped", append(observability.TokenAttrs(token), slog.Int("fds", n))...)
	}
}

func (d *dispatcher[P, M, R, T]) invalidToken(op string, token Token, err error) {
	d.metrics.RecordInvalidToken(context.Background(), d.name, op)
	observability.LogInvalidToken(d.logger, op, token, err)
}

// loopView is the Loop handed to handler callbacks.
type loopView[P, M, R, T any] struct {
	loop   *reactor.Loop[Message[P, M, R], Timeout[T]]
	logger *slog.Logger
}

func (v *loopView[P, M, R, T]) Timeout(token Token, payload T, delay time.Duration) error {
	return v.loop.Timeout(Timeout[T]{Token: token, Payload: payload}, delay)
}

func (v *loopView[P, M, R, T]) Register(fd int, token Token, interest EventSet) error {
	return v.loop.Register(fd, token, interest)
}

func (v *loopView[P, M, R, T]) Reregister(fd int, token Token, interest EventSet) error {
	return v.loop.Reregister(fd, token, interest)
}

func (v *loopView[P, M, R, T]) Deregister(fd int) error {
	return v.loop.Deregister(fd)
}

func (v *loopView[P, M, R, T]) Shutdown() {
	v.loop.Shutdown()
}

func (v *loopView[P, M, R, T]) Logger() *slog.Logger {
	return v.logger
}

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Sink receives every event a Loop produces. All methods run on the
// goroutine executing Run, one at a time.
type Sink[M, T any] interface {
	// Ready delivers readiness events for a registered file descriptor.
	Ready(l *Loop[M, T], token Token, events EventSet)

	// Notify delivers one message sent through a Sender.
	Notify(l *Loop[M, T], msg M)

	// Timeout delivers an expired timer.
	Timeout(l *Loop[M, T], payload T)

	// Tick runs once at the end of every loop iteration.
	Tick(l *Loop[M, T])
}

// Discarder is implemented by sinks that want the messages still queued when
// the loop stops. Discard runs on the loop goroutine after the last iteration.
type Discarder[M any] interface {
	Discard(msg M)
}

// Loop is a single-consumer reactor. M is the message type carried by the
// notification channel and T the timer payload type.
type Loop[M, T any] struct {
	cfg Config

	// Notification channel: FIFO guarded by mu.
	mu     sync.Mutex
	queue  *queue.Queue
	closed bool

	// Poller lifetime: wake may race with close from other goroutines.
	pollMu       sync.RWMutex
	poller       poller
	pollerClosed bool

	// Loop-goroutine state.
	timers   timerHeap[T]
	timerSeq uint64

	running  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
	once     sync.Once
}

// New creates a loop with the given configuration.
func New[M, T any](cfg Config) (*Loop[M, T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor: create poller: %w", err)
	}
	return &Loop[M, T]{
		cfg:    cfg,
		queue:  queue.New(),
		poller: p,
		done:   make(chan struct{}),
	}, nil
}

// Config returns the loop configuration.
func (l *Loop[M, T]) Config() Config {
	return l.cfg
}

// Channel returns a Sender that queues messages for Sink.Notify.
func (l *Loop[M, T]) Channel() Sender[M] {
	return Sender[M]{mb: l}
}

// Pending returns the number of queued messages.
func (l *Loop[M, T]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Length()
}

// IsRunning reports whether Run is executing.
func (l *Loop[M, T]) IsRunning() bool {
	return l.running.Load() && !l.isDone()
}

// Done is closed once the loop has stopped and released its resources.
func (l *Loop[M, T]) Done() <-chan struct{} {
	return l.done
}

// Register starts polling fd for the interest set, reporting events under token.
// Must be called from the loop goroutine.
func (l *Loop[M, T]) Register(fd int, token Token, interest EventSet) error {
	return l.poller.register(fd, token, interest)
}

// Reregister replaces the token and interest set of a registered fd.
// Must be called from the loop goroutine.
func (l *Loop[M, T]) Reregister(fd int, token Token, interest EventSet) error {
	return l.poller.reregister(fd, token, interest)
}

// Deregister stops polling fd. Must be called from the loop goroutine.
func (l *Loop[M, T]) Deregister(fd int) error {
	return l.poller.deregister(fd)
}

// DeregisterToken stops polling every fd registered under token and returns
// how many there were. Must be called from the loop goroutine.
func (l *Loop[M, T]) DeregisterToken(token Token) int {
	return l.poller.deregisterToken(token)
}

// Shutdown asks Run to return after the current iteration.
// Safe to call from any goroutine, any number of times.
func (l *Loop[M, T]) Shutdown() {
	l.stopping.Store(true)
	l.wake()
}

// Close releases a loop that was never run. Messages still queued are dropped.
// For a running loop it behaves like Shutdown.
func (l *Loop[M, T]) Close() error {
	if l.running.Load() {
		l.Shutdown()
		return nil
	}
	l.stopping.Store(true)
	l.finish(nil)
	return nil
}

// Run delivers events to sink until Shutdown is called or polling fails.
// A loop runs at most once: Run on a running loop returns ErrAlreadyRunning,
// on a stopped or closed one ErrLoopClosed.
func (l *Loop[M, T]) Run(sink Sink[M, T]) error {
	return l.RunWith(sink, nil)
}

// RunWith is Run with a start hook. start runs on the calling goroutine once
// this call owns the loop and before the first poll; a caller that loses the
// race for the loop gets ErrAlreadyRunning and start never runs. An error
// from start stops the loop and is returned as is.
func (l *Loop[M, T]) RunWith(sink Sink[M, T], start func() error) error {
	if l.isDone() {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.finish(sink)

	if start != nil {
		if err := start(); err != nil {
			return err
		}
	}

	batch := make([]M, 0, l.cfg.MessagesPerTick)
	for !l.stopping.Load() {
		err := l.poller.wait(l.pollTimeout(), func(token Token, events EventSet) {
			sink.Ready(l, token, events)
		})
		if err != nil {
			return fmt.Errorf("reactor: poll: %w", err)
		}

		batch = l.notify(sink, batch[:0])
		l.fireTimers(sink)
		if l.stopping.Load() {
			break
		}
		sink.Tick(l)
	}
	return nil
}

// notify pops up to MessagesPerTick messages under one lock and delivers them.
func (l *Loop[M, T]) notify(sink Sink[M, T], batch []M) []M {
	l.mu.Lock()
	for len(batch) < l.cfg.MessagesPerTick && l.queue.Length() > 0 {
		msg, _ := l.queue.Remove().(M)
		batch = append(batch, msg)
	}
	l.mu.Unlock()

	for i, msg := range batch {
		if l.stopping.Load() {
			l.requeueFront(batch[i:])
			break
		}
		sink.Notify(l, msg)
	}

	var zero M
	for i := range batch {
		batch[i] = zero
	}
	return batch
}

// requeueFront puts undelivered messages back so finish can discard them in order.
func (l *Loop[M, T]) requeueFront(msgs []M) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rest := queue.New()
	for _, m := range msgs {
		rest.Add(m)
	}
	for l.queue.Length() > 0 {
		rest.Add(l.queue.Remove())
	}
	l.queue = rest
}

// pollTimeout is zero when messages are queued, otherwise the time until the
// next timer capped by IOPollTimeout.
func (l *Loop[M, T]) pollTimeout() time.Duration {
	if l.Pending() > 0 || l.stopping.Load() {
		return 0
	}
	timeout := l.cfg.IOPollTimeout
	if d, ok := l.nextTimerIn(); ok && d < timeout {
		timeout = d
	}
	return timeout
}

// push is the Sender side of the channel.
func (l *Loop[M, T]) push(msg M) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	if l.queue.Length() >= l.cfg.NotifyCapacity {
		l.mu.Unlock()
		return ErrChannelFull
	}
	l.queue.Add(msg)
	first := l.queue.Length() == 1
	l.mu.Unlock()

	// The loop re-checks Pending before blocking, so only the message that
	// makes the queue non-empty needs to wake it.
	if first {
		l.wake()
	}
	return nil
}

func (l *Loop[M, T]) wake() {
	l.pollMu.RLock()
	defer l.pollMu.RUnlock()
	if !l.pollerClosed {
		_ = l.poller.wake()
	}
}

// finish closes the channel, hands leftover messages to the sink and releases
// the poller.
func (l *Loop[M, T]) finish(sink Sink[M, T]) {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		leftover := make([]M, 0, l.queue.Length())
		for l.queue.Length() > 0 {
			msg, _ := l.queue.Remove().(M)
			leftover = append(leftover, msg)
		}
		l.mu.Unlock()

		if d, ok := sink.(Discarder[M]); ok {
			for _, msg := range leftover {
				d.Discard(msg)
			}
		}
		l.timers = nil

		l.pollMu.Lock()
		l.pollerClosed = true
		_ = l.poller.close()
		l.pollMu.Unlock()

		close(l.done)
	})
}

func (l *Loop[M, T]) isDone() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// mailbox is the producer half of a Loop, independent of its timer type.
type mailbox[M any] interface {
	push(M) error
}

// Sender queues messages for a Loop. The zero Sender is closed.
// Copies share the same loop; each copy preserves FIFO order for its own sends.
type Sender[M any] struct {
	mb mailbox[M]
}

// Send queues msg for delivery to Sink.Notify.
// It returns ErrLoopClosed once the loop has stopped and ErrChannelFull when
// NotifyCapacity messages are already queued.
func (s Sender[M]) Send(msg M) error {
	if s.mb == nil {
		return ErrLoopClosed
	}
	return s.mb.push(msg)
}

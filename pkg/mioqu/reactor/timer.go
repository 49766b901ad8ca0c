package reactor

import (
	"container/heap"
	"time"
)

// timer is one pending timeout. seq breaks ties between equal deadlines so
// timers armed first fire first.
type timer[T any] struct {
	when    time.Time
	seq     uint64
	payload T
}

// timerHeap is a min-heap of timers ordered by deadline.
type timerHeap[T any] []timer[T]

func (h timerHeap[T]) Len() int { return len(h) }
func (h timerHeap[T]) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap[T]) Push(x any) {
	*h = append(*h, x.(timer[T]))
}

func (h *timerHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = timer[T]{}
	*h = old[:n-1]
	return x
}

// deadline returns now+delay rounded up to a whole number of ticks.
func deadline(now time.Time, delay, tick time.Duration) time.Time {
	if delay < 0 {
		delay = 0
	}
	if tick > 0 {
		if rem := delay % tick; rem != 0 {
			delay += tick - rem
		}
	}
	return now.Add(delay)
}

// Timeout arms a one-shot timer that delivers payload to Sink.Timeout at or
// after delay has elapsed. Timers never repeat; re-arm from Sink.Timeout for
// periodic behavior. Must be called from the loop goroutine.
func (l *Loop[M, T]) Timeout(payload T, delay time.Duration) error {
	if len(l.timers) >= l.cfg.TimerCapacity {
		return ErrTimerCapacity
	}
	l.timerSeq++
	heap.Push(&l.timers, timer[T]{
		when:    deadline(time.Now(), delay, l.cfg.TimerTick),
		seq:     l.timerSeq,
		payload: payload,
	})
	return nil
}

// PendingTimers returns the number of armed timers.
func (l *Loop[M, T]) PendingTimers() int {
	return len(l.timers)
}

// fireTimers delivers every timer due by now that was armed before this call.
// Timers armed from inside Sink.Timeout wait for the next iteration.
func (l *Loop[M, T]) fireTimers(sink Sink[M, T]) {
	now := time.Now()
	limit := l.timerSeq
	for len(l.timers) > 0 && !l.stopping.Load() {
		next := l.timers[0]
		if next.when.After(now) || next.seq > limit {
			return
		}
		heap.Pop(&l.timers)
		sink.Timeout(l, next.payload)
	}
}

// nextTimerIn returns the time until the earliest deadline, and false if no
// timer is pending.
func (l *Loop[M, T]) nextTimerIn() (time.Duration, bool) {
	if len(l.timers) == 0 {
		return 0, false
	}
	d := time.Until(l.timers[0].when)
	if d < 0 {
		d = 0
	}
	return d, true
}

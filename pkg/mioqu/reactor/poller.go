package reactor

import "time"

// poller is the readiness backend of a Loop. wait, register, reregister,
// deregister and close run on the loop goroutine; wake may run anywhere.
type poller interface {
	// wait blocks for at most timeout (zero polls without blocking) and calls
	// fn for every ready registration. A wake-up ends the wait early.
	wait(timeout time.Duration, fn func(Token, EventSet)) error

	// wake interrupts a blocked or upcoming wait.
	wake() error

	register(fd int, token Token, interest EventSet) error
	reregister(fd int, token Token, interest EventSet) error
	deregister(fd int) error
	// deregisterToken removes every fd registered under token and returns
	// how many there were.
	deregisterToken(token Token) int
	close() error
}

// pollMillis converts a timeout to poll(2)-style milliseconds, rounding up so
// a timer due in under a millisecond does not busy-spin.
func pollMillis(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

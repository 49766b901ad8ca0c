package reactor

import "errors"

// Sentinel errors for the notification channel.
var (
	// ErrLoopClosed indicates the loop has stopped and accepts no more messages
	// or runs.
	ErrLoopClosed = errors.New("reactor: loop closed")

	// ErrChannelFull indicates NotifyCapacity messages are already queued.
	ErrChannelFull = errors.New("reactor: notify channel full")
)

// Sentinel errors for loop operations.
var (
	// ErrAlreadyRunning indicates Run was called on a loop another caller owns.
	ErrAlreadyRunning = errors.New("reactor: loop already running")

	// ErrTimerCapacity indicates TimerCapacity timers are already pending.
	ErrTimerCapacity = errors.New("reactor: timer capacity exceeded")

	// ErrNotSupported indicates readiness polling is unavailable on this platform.
	ErrNotSupported = errors.New("reactor: readiness polling not supported on this platform")

	// ErrInvalidConfig indicates a Config field is out of range.
	ErrInvalidConfig = errors.New("reactor: invalid config")
)

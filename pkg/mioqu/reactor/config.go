package reactor

import (
	"fmt"
	"time"

	"github.com/inre/mioqu/pkg/mioqu/config"
)

// Config tunes a Loop.
type Config struct {
	// IOPollTimeout caps how long one poll may block.
	// Default: 1s
	IOPollTimeout time.Duration

	// NotifyCapacity bounds the number of queued messages.
	// Default: 4096
	NotifyCapacity int

	// MessagesPerTick bounds the messages delivered per loop iteration.
	// Default: 256
	MessagesPerTick int

	// TimerTick is the timer resolution; deadlines are rounded up to it.
	// Zero disables rounding.
	// Default: 10ms
	TimerTick time.Duration

	// TimerCapacity bounds the number of pending timers.
	// Default: 65536
	TimerCapacity int
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		IOPollTimeout:   time.Second,
		NotifyCapacity:  4096,
		MessagesPerTick: 256,
		TimerTick:       10 * time.Millisecond,
		TimerCapacity:   65536,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.IOPollTimeout <= 0:
		return fmt.Errorf("%w: io poll timeout must be positive, got %s", ErrInvalidConfig, c.IOPollTimeout)
	case c.NotifyCapacity <= 0:
		return fmt.Errorf("%w: notify capacity must be positive, got %d", ErrInvalidConfig, c.NotifyCapacity)
	case c.MessagesPerTick <= 0:
		return fmt.Errorf("%w: messages per tick must be positive, got %d", ErrInvalidConfig, c.MessagesPerTick)
	case c.TimerTick < 0:
		return fmt.Errorf("%w: timer tick must not be negative, got %s", ErrInvalidConfig, c.TimerTick)
	case c.TimerCapacity <= 0:
		return fmt.Errorf("%w: timer capacity must be positive, got %d", ErrInvalidConfig, c.TimerCapacity)
	}
	return nil
}

// FromConfig overlays the keys io_poll_timeout, notify_capacity,
// messages_per_tick, timer_tick and timer_capacity onto DefaultConfig.
func FromConfig(cfg config.Config) Config {
	def := DefaultConfig()
	return Config{
		IOPollTimeout:   cfg.Duration("io_poll_timeout", def.IOPollTimeout),
		NotifyCapacity:  cfg.Int("notify_capacity", def.NotifyCapacity),
		MessagesPerTick: cfg.Int("messages_per_tick", def.MessagesPerTick),
		TimerTick:       cfg.Duration("timer_tick", def.TimerTick),
		TimerCapacity:   cfg.Int("timer_capacity", def.TimerCapacity),
	}
}

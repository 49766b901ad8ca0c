/*
Package reactor provides the single-consumer event loop that drives a
dispatcher: a multi-producer notification channel, readiness polling keyed by
Token, a timer heap, and a blocking run loop that feeds all three sources to
one Sink.

# Loop Iteration

Each iteration of Run performs, in order:

 1. Poll for readiness, blocking for at most IOPollTimeout, or until the next
    timer is due, or not at all when messages are already queued.
 2. Deliver readiness events to Sink.Ready.
 3. Deliver up to MessagesPerTick queued messages to Sink.Notify.
 4. Deliver expired timers to Sink.Timeout.
 5. Call Sink.Tick.

# Threading

Sender values may be used from any goroutine. Everything else on Loop
(Timeout, Register, Reregister, Deregister) belongs to the goroutine running
Run and must only be called from Sink callbacks, or before Run starts.
Shutdown is safe from any goroutine.

# Platforms

On Linux readiness polling uses epoll, with an eventfd to wake the poller when
a message is queued. Elsewhere the loop runs channel-only: messages and timers
work, and Register returns ErrNotSupported.
*/
package reactor

//go:build !linux

package reactor

import "time"

// chanPoller serves platforms without an epoll backend: it only waits for
// wake-ups and timeouts.
type chanPoller struct {
	wakeCh chan struct{}
}

func newPoller() (poller, error) {
	return &chanPoller{wakeCh: make(chan struct{}, 1)}, nil
}

func (p *chanPoller) wait(timeout time.Duration, _ func(Token, EventSet)) error {
	if timeout <= 0 {
		select {
		case <-p.wakeCh:
		default:
		}
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.wakeCh:
	case <-t.C:
	}
	return nil
}

func (p *chanPoller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *chanPoller) register(int, Token, EventSet) error   { return ErrNotSupported }
func (p *chanPoller) reregister(int, Token, EventSet) error { return ErrNotSupported }
func (p *chanPoller) deregister(int) error                  { return ErrNotSupported }
func (p *chanPoller) deregisterToken(Token) int             { return 0 }
func (p *chanPoller) close() error                          { return nil }

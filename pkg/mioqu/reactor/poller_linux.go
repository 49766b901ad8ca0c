//go:build linux

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// epollPoller polls registered descriptors with epoll(7) and is woken through
// an eventfd registered alongside them.
type epollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	tokens map[int32]Token
	buf    [8]byte
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake fd: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
		tokens: make(map[int32]Token),
	}, nil
}

func (p *epollPoller) wait(timeout time.Duration, fn func(Token, EventSet)) error {
	n, err := unix.EpollWait(p.epfd, p.events, pollMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		if int(ev.Fd) == p.wakefd {
			p.drainWake()
			continue
		}
		token, ok := p.tokens[ev.Fd]
		if !ok {
			continue
		}
		fn(token, fromEpoll(ev.Events))
	}
	return nil
}

func (p *epollPoller) drainWake() {
	for {
		if _, err := unix.Read(p.wakefd, p.buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// Counter saturated: a wake-up is already pending.
		return nil
	}
	return err
}

func (p *epollPoller) register(fd int, token Token, interest EventSet) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	p.tokens[int32(fd)] = token
	return nil
}

func (p *epollPoller) reregister(fd int, token Token, interest EventSet) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	p.tokens[int32(fd)] = token
	return nil
}

func (p *epollPoller) deregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(p.tokens, int32(fd))
	return nil
}

func (p *epollPoller) deregisterToken(token Token) int {
	n := 0
	for fd, t := range p.tokens {
		if t != token {
			continue
		}
		// A closed fd has already left the epoll set.
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
		delete(p.tokens, fd)
		n++
	}
	return n
}

func (p *epollPoller) close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}

func toEpoll(interest EventSet) uint32 {
	var events uint32
	if interest.IsReadable() {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest.IsWritable() {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpoll(events uint32) EventSet {
	var set EventSet
	if events&unix.EPOLLIN != 0 {
		set |= Readable
	}
	if events&unix.EPOLLOUT != 0 {
		set |= Writable
	}
	if events&unix.EPOLLERR != 0 {
		set |= Error
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		set |= Hangup
	}
	return set
}

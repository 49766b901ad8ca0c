//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPipeReadiness(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	l, err := New[int, string](testConfig())
	require.NoError(t, err)

	token := TokenFromIndex(3)
	registered := make(chan struct{})
	got := make(chan Token, 1)

	sink := &recordingSink{}
	sink.onNotify = func(l *Loop[int, string], _ int) {
		assert.NoError(t, l.Register(r, token, Readable))
		close(registered)
	}
	sink.onReady = func(l *Loop[int, string], tok Token, events EventSet) {
		if !events.IsReadable() {
			return
		}
		buf := make([]byte, 16)
		_, _ = unix.Read(r, buf)
		assert.NoError(t, l.Deregister(r))
		got <- tok
	}
	startLoop(t, l, sink)

	require.NoError(t, l.Channel().Send(0))
	<-registered

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	select {
	case tok := <-got:
		assert.Equal(t, token, tok)
	case <-time.After(time.Second):
		t.Fatal("no readiness event for pipe")
	}
}

func TestReregisterUnknownFd(t *testing.T) {
	p, err := newPoller()
	require.NoError(t, err)
	defer p.close()

	assert.Error(t, p.reregister(9999, TokenFromIndex(0), Readable))
	assert.Error(t, p.deregister(9999))
}

func TestDeregisterToken(t *testing.T) {
	p, err := newPoller()
	require.NoError(t, err)
	defer p.close()

	pipe := func() int {
		fds := make([]int, 2)
		require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
		t.Cleanup(func() {
			unix.Close(fds[0])
			unix.Close(fds[1])
		})
		return fds[0]
	}
	a, b := TokenFromIndex(1), TokenFromIndex(2)
	a1, a2, b1 := pipe(), pipe(), pipe()
	require.NoError(t, p.register(a1, a, Readable))
	require.NoError(t, p.register(a2, a, Readable))
	require.NoError(t, p.register(b1, b, Readable))

	assert.Equal(t, 2, p.deregisterToken(a))
	assert.Equal(t, 0, p.deregisterToken(a))
	assert.Error(t, p.deregister(a1))
	assert.NoError(t, p.deregister(b1))
}

func TestEpollMapping(t *testing.T) {
	assert.Equal(t, Readable, fromEpoll(unix.EPOLLIN))
	assert.Equal(t, Readable|Hangup, fromEpoll(unix.EPOLLIN|unix.EPOLLRDHUP))
	assert.Equal(t, Writable|Error, fromEpoll(unix.EPOLLOUT|unix.EPOLLERR))
	assert.Equal(t, Hangup, fromEpoll(unix.EPOLLHUP))
}

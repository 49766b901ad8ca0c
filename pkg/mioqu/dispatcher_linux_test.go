//go:build linux

package mioqu

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pipeReader watches the read end of a pipe and answers "next" with the
// bytes that arrive.
type pipeReader struct {
	fd       int
	passive  bool // never drain the pipe
	buffered []byte
	waiting  *Callback[string]
}

type pipeHandler struct {
	BaseHandler[pipeReader, string, string, struct{}]
}

func (pipeHandler) Process(loop Loop[struct{}], token Token, p *pipeReader, msg string, cb *Callback[string]) {
	switch msg {
	case "watch":
		if err := loop.Register(p.fd, token, Readable); err != nil {
			_ = cb.Fail(err)
			return
		}
		_ = cb.Reply("ok")
	case "next":
		if len(p.buffered) > 0 {
			_ = cb.Reply(string(p.buffered))
			p.buffered = nil
			return
		}
		p.waiting = cb
	case "watch-foreign":
		// Registered under a token no processor owns.
		if err := loop.Register(p.fd, Token(99), Readable); err != nil {
			_ = cb.Fail(err)
			return
		}
		_ = cb.Reply("ok")
	case "unwatch":
		_ = cb.Reply("ok")
		_ = loop.Deregister(p.fd)
	case "noop":
		_ = cb.Reply("ok")
	}
}

func (pipeHandler) Ready(_ Loop[struct{}], _ Token, p *pipeReader, events EventSet) {
	if !events.IsReadable() || p.passive {
		return
	}
	buf := make([]byte, 64)
	n, err := unix.Read(p.fd, buf)
	if err != nil || n <= 0 {
		return
	}
	p.buffered = append(p.buffered, buf[:n]...)
	if p.waiting != nil {
		_ = p.waiting.Reply(string(p.buffered))
		p.waiting = nil
		p.buffered = nil
	}
}

func TestReadinessReachesProcessor(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	loop, err := NewLoop[pipeReader, string, string, struct{}](testLoopConfig())
	require.NoError(t, err)
	b, err := Run[pipeReader, string, string, struct{}](loop, pipeHandler{})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Shutdown()
		<-b.Done()
	})
	ctx := waitCtx(t)

	token, err := b.Register(pipeReader{fd: fds[0]})
	require.NoError(t, err)

	reply, err := b.Call(ctx, token, "watch")
	require.NoError(t, err)
	require.Equal(t, "ok", reply)

	cb, pending := ChannelCallback[string]()
	require.NoError(t, b.Send(token, "next", cb))

	_, err = unix.Write(fds[1], []byte("hello"))
	require.NoError(t, err)

	got, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	reply, err = b.Call(ctx, token, "unwatch")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func startPipeQueue(t *testing.T, h *testLogHandler) (Binding[pipeReader, string, string], int, int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))

	loop, err := NewLoop[pipeReader, string, string, struct{}](testLoopConfig())
	require.NoError(t, err)
	b, err := Run[pipeReader, string, string, struct{}](loop, pipeHandler{}, WithLogger(slog.New(h)))
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Shutdown()
		<-b.Done()
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return b, fds[0], fds[1]
}

func countRecords(h *testLogHandler, msg string) int {
	n := 0
	for _, r := range h.getRecords() {
		if r["msg"] == msg {
			n++
		}
	}
	return n
}

func TestUnregisterDropsFdRegistrations(t *testing.T) {
	h := newTestLogHandler()
	b, r, w := startPipeQueue(t, h)
	ctx := waitCtx(t)

	token, err := b.Register(pipeReader{fd: r, passive: true})
	require.NoError(t, err)
	_, err = b.Call(ctx, token, "watch")
	require.NoError(t, err)

	b.Unregister(token)
	_, err = unix.Write(w, []byte("left unread"))
	require.NoError(t, err)

	// Keep the reactor iterating while the pipe stays readable.
	other, err := b.Register(pipeReader{fd: -1})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = b.Call(ctx, other, "noop")
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	rec := h.find("fd registrations dropped")
	require.NotNil(t, rec)
	assert.Equal(t, float64(1), rec["fds"])
	assert.Zero(t, countRecords(h, "invalid token"))
}

func TestReadinessForDeadTokenIsDroppedOnce(t *testing.T) {
	h := newTestLogHandler()
	b, r, w := startPipeQueue(t, h)
	ctx := waitCtx(t)

	token, err := b.Register(pipeReader{fd: r, passive: true})
	require.NoError(t, err)
	_, err = b.Call(ctx, token, "watch-foreign")
	require.NoError(t, err)

	_, err = unix.Write(w, []byte("nobody reads this"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.find("fd registrations dropped") != nil
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		_, err = b.Call(ctx, token, "noop")
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, 1, countRecords(h, "invalid token"))
	rec := h.find("invalid token")
	require.NotNil(t, rec)
	assert.Equal(t, "ready", rec["operation"])
}

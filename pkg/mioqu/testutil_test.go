package mioqu

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"github.com/stretchr/testify/require"
)

// Storage fixtures: a processor holding a number or a word, read with Load
// and written with Save.

type storage struct {
	numeric bool
	num     int
	word    string
}

type query struct {
	save  bool
	value response
}

var load = query{}

func saveQuery(v response) query { return query{save: true, value: v} }

type responseKind int

const (
	responseOK responseKind = iota
	responseNum
	responseStr
	responseErr
)

type response struct {
	kind responseKind
	num  int
	str  string
}

func num(n int) response    { return response{kind: responseNum, num: n} }
func str(s string) response { return response{kind: responseStr, str: s} }

func (r response) asNum() (int, error) {
	if r.kind != responseNum {
		return 0, ResponseError("incorrect type")
	}
	return r.num, nil
}

func (r response) asStr() (string, error) {
	if r.kind != responseStr {
		return "", ResponseError("incorrect type")
	}
	return r.str, nil
}

func (r response) ok() error {
	if r.kind != responseOK {
		return ResponseError("incorrect type")
	}
	return nil
}

type storageHandler struct {
	BaseHandler[storage, query, response, struct{}]
}

func (storageHandler) Process(_ Loop[struct{}], _ Token, s *storage, q query, cb *Callback[response]) {
	if !q.save {
		if s.numeric {
			_ = cb.Reply(num(s.num))
		} else {
			_ = cb.Reply(str(s.word))
		}
		return
	}

	var err error
	if s.numeric {
		s.num, err = q.value.asNum()
	} else {
		s.word, err = q.value.asStr()
	}
	if err != nil {
		_ = cb.Reply(response{kind: responseErr, str: err.Error()})
		return
	}
	_ = cb.Reply(response{kind: responseOK})
}

// Counter fixtures: a processor counting timer expirations or increments.

type counter struct {
	value  int
	period time.Duration
	held   *Callback[int]
}

type task int

const (
	taskStart task = iota
	taskCount
	taskIncrement
	taskPanic
	taskHold
)

type counterHandler struct {
	BaseHandler[counter, task, int, struct{}]
	ticks atomic.Int64
}

func (h *counterHandler) Process(loop Loop[struct{}], token Token, c *counter, t task, cb *Callback[int]) {
	switch t {
	case taskStart:
		if err := loop.Timeout(token, struct{}{}, c.period); err != nil {
			loop.Logger().Error("arm timer", slog.String("error", err.Error()))
		}
	case taskCount:
		_ = cb.Reply(c.value)
	case taskIncrement:
		c.value++
		_ = cb.Reply(c.value)
	case taskPanic:
		panic("counter exploded")
	case taskHold:
		c.held = cb
	}
}

func (h *counterHandler) Timeout(loop Loop[struct{}], token Token, c *counter, _ struct{}) {
	c.value++
	_ = loop.Timeout(token, struct{}{}, c.period)
}

func (h *counterHandler) Tick(Loop[struct{}]) {
	h.ticks.Add(1)
}

func testLoopConfig() reactor.Config {
	cfg := reactor.DefaultConfig()
	cfg.IOPollTimeout = 50 * time.Millisecond
	cfg.NotifyCapacity = 1 << 16
	return cfg
}

func startStorage(t *testing.T, opts ...Option) Binding[storage, query, response] {
	t.Helper()
	loop, err := NewLoop[storage, query, response, struct{}](testLoopConfig())
	require.NoError(t, err)

	b, err := Run[storage, query, response, struct{}](loop, storageHandler{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Shutdown()
		<-b.Done()
	})
	return b
}

func startCounter(t *testing.T, h *counterHandler, opts ...Option) Binding[counter, task, int] {
	t.Helper()
	loop, err := NewLoop[counter, task, int, struct{}](testLoopConfig())
	require.NoError(t, err)

	b, err := Run[counter, task, int, struct{}](loop, h, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Shutdown()
		<-b.Done()
	})
	return b
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testLogHandler captures log records written from any goroutine.
type testLogHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{mu: &sync.Mutex{}, buf: &bytes.Buffer{}}
}

func (h *testLogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testLogHandler{
		mu:    h.mu,
		buf:   h.buf,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *testLogHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testLogHandler) getRecords() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var records []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			records = append(records, m)
		}
	}
	return records
}

func (h *testLogHandler) find(msg string) map[string]any {
	for _, r := range h.getRecords() {
		if r["msg"] == msg {
			return r
		}
	}
	return nil
}

package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lodestar-sh/lodestar/pkg/core"
)

type fakeStream struct {
	frames chan []byte
	once   sync.Once
	done   chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (s *fakeStream) ReadFrame() ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-s.done:
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type fakeDialer struct {
	pushFn   func() (frameStream, error)
	socketFn func() (frameStream, error)
}

func (d *fakeDialer) push(_ context.Context, _ string) (frameStream, error) {
	if d.pushFn == nil {
		return nil, errors.New("push refused")
	}
	return d.pushFn()
}

func (d *fakeDialer) socket(_ context.Context, _ string) (frameStream, error) {
	if d.socketFn == nil {
		return nil, errors.New("socket refused")
	}
	return d.socketFn()
}

type recorder struct {
	samples chan core.MetricPoint
	states  chan ConnState
	errs    chan error
}

func newRecorder() *recorder {
	return &recorder{
		samples: make(chan core.MetricPoint, 64),
		states:  make(chan ConnState, 64),
		errs:    make(chan error, 64),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		Sample: func(_ string, p core.MetricPoint) { r.samples <- p },
		State:  func(s ConnState) { r.states <- s },
		Error:  func(_ string, err error) { r.errs <- err },
	}
}

func (r *recorder) waitState(t *testing.T, pred func(ConnState) bool) ConnState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for connection state")
		}
	}
}

func (r *recorder) waitSample(t *testing.T) core.MetricPoint {
	t.Helper()
	select {
	case p := <-r.samples:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
	}
	return core.MetricPoint{}
}

func newTestManager(t *testing.T, rec *recorder, dial dialer, opts Options) *Manager {
	t.Helper()
	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = time.Millisecond
	}
	m := NewManager(rec.handler(), opts, nil)
	m.dial = dial
	m.jitter = func() time.Duration { return 0 }
	t.Cleanup(m.Close)
	return m
}

func TestManagerDeliversSamples(t *testing.T) {
	st := newFakeStream()
	st.frames <- []byte(`{"ts_unix_ms":100,"value":42.5,"kind":"cpu_pct"}`)
	dial := &fakeDialer{pushFn: func() (frameStream, error) { return st, nil }}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	rec.waitState(t, func(s ConnState) bool {
		return s.State == StateConnected && s.Transport == TransportPush
	})
	p := rec.waitSample(t)
	if p.Value != 42.5 || p.Kind != "cpu_pct" {
		t.Fatalf("unexpected sample: %+v", p)
	}
	if p.SourceID != "web" {
		t.Fatalf("source id not filled in: %q", p.SourceID)
	}
}

func TestManagerParseErrorKeepsConnection(t *testing.T) {
	st := newFakeStream()
	st.frames <- []byte(`{not json`)
	st.frames <- []byte(`{"ts_unix_ms":200,"value":7,"kind":"mem_pct"}`)
	dial := &fakeDialer{pushFn: func() (frameStream, error) { return st, nil }}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	if err := m.Subscribe("api", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case err := <-rec.errs:
		if err == nil {
			t.Fatal("expected parse error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for parse error")
	}

	p := rec.waitSample(t)
	if p.Value != 7 {
		t.Fatalf("frame after parse error not delivered: %+v", p)
	}
	if s, ok := m.State("api"); !ok || s.State != StateConnected {
		t.Fatalf("connection should survive a bad frame, state %+v", s)
	}
}

func TestManagerFallsBackToSocket(t *testing.T) {
	st := newFakeStream()
	dial := &fakeDialer{
		pushFn:   func() (frameStream, error) { return nil, errors.New("push down") },
		socketFn: func() (frameStream, error) { return st, nil },
	}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	if err := m.Subscribe("db", Endpoints{PushURL: "http://push", SocketURL: "ws://sock"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := rec.waitState(t, func(s ConnState) bool { return s.State == StateConnected })
	if s.Transport != TransportSocket {
		t.Fatalf("expected socket fallback, got %s", s.Transport)
	}
}

func TestManagerFailsAfterAttemptBudget(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	dial := &fakeDialer{pushFn: func() (frameStream, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("refused")
	}}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{MaxReconnectAttempts: 3})
	if err := m.Subscribe("worker", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := rec.waitState(t, func(s ConnState) bool { return s.State == StateFailed })
	if s.Attempts != 3 {
		t.Fatalf("failed with attempts = %d, want 3", s.Attempts)
	}

	mu.Lock()
	got := dials
	mu.Unlock()
	// initial connect plus three reconnects
	if got != 4 {
		t.Fatalf("dial count = %d, want 4", got)
	}

	// no further reconnects after the terminal state
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := dials
	mu.Unlock()
	if after != got {
		t.Fatalf("dials continued after failure: %d -> %d", got, after)
	}
}

func TestManagerResubscribeAfterFailure(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	dial := &fakeDialer{pushFn: func() (frameStream, error) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			return nil, errors.New("refused")
		}
		return newFakeStream(), nil
	}}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{MaxReconnectAttempts: 1})
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitState(t, func(s ConnState) bool { return s.State == StateFailed })

	mu.Lock()
	healthy = true
	mu.Unlock()
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	s := rec.waitState(t, func(s ConnState) bool { return s.State == StateConnected })
	if s.Attempts != 0 {
		t.Fatalf("attempt budget not reset on resubscribe: %d", s.Attempts)
	}
}

func TestManagerAttemptsResetOnFrame(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	var second *fakeStream
	dial := &fakeDialer{pushFn: func() (frameStream, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch dials {
		case 1:
			st := newFakeStream()
			close(st.frames) // immediate EOF forces a reconnect
			return st, nil
		default:
			second = newFakeStream()
			second.frames <- []byte(`{"ts_unix_ms":1,"value":1,"kind":"cpu_pct"}`)
			return second, nil
		}
	}}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{MaxReconnectAttempts: 5})
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	rec.waitState(t, func(s ConnState) bool { return s.State == StateReconnecting && s.Attempts == 1 })
	rec.waitSample(t)
	rec.waitState(t, func(s ConnState) bool { return s.State == StateConnected && s.Attempts == 0 })
}

func TestUnsubscribeIdempotent(t *testing.T) {
	st := newFakeStream()
	dial := &fakeDialer{pushFn: func() (frameStream, error) { return st, nil }}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitState(t, func(s ConnState) bool { return s.State == StateConnected })

	m.Unsubscribe("web")
	rec.waitState(t, func(s ConnState) bool { return s.State == StateClosed })
	if _, ok := m.State("web"); ok {
		t.Fatal("state retained after unsubscribe")
	}

	m.Unsubscribe("web")
	m.Unsubscribe("never-subscribed")
}

func TestSubscribeValidation(t *testing.T) {
	rec := newRecorder()
	m := newTestManager(t, rec, &fakeDialer{}, Options{})

	if err := m.Subscribe("web", Endpoints{}); err == nil {
		t.Fatal("expected error for empty endpoints")
	}
}

func TestSubscribeDuplicateIsNoop(t *testing.T) {
	st := newFakeStream()
	var mu sync.Mutex
	dials := 0
	dial := &fakeDialer{pushFn: func() (frameStream, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return st, nil
	}}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitState(t, func(s ConnState) bool { return s.State == StateConnected })
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err != nil {
		t.Fatalf("duplicate subscribe: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Fatalf("duplicate subscribe redialed: %d dials", dials)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	dial := &fakeDialer{pushFn: func() (frameStream, error) { return newFakeStream(), nil }}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	for _, id := range []string{"web", "api", "db"} {
		if err := m.Subscribe(id, Endpoints{PushURL: "http://push"}); err != nil {
			t.Fatalf("subscribe %s: %v", id, err)
		}
	}

	m.Close()
	if got := m.States(); len(got) != 0 {
		t.Fatalf("states after close: %d", len(got))
	}
	if err := m.Subscribe("web", Endpoints{PushURL: "http://push"}); err == nil {
		t.Fatal("subscribe after close should fail")
	}
}

func TestStatesSorted(t *testing.T) {
	dial := &fakeDialer{pushFn: func() (frameStream, error) { return newFakeStream(), nil }}

	rec := newRecorder()
	m := newTestManager(t, rec, dial, Options{})
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := m.Subscribe(id, Endpoints{PushURL: "http://push"}); err != nil {
			t.Fatalf("subscribe %s: %v", id, err)
		}
	}

	got := m.States()
	if len(got) != 3 || got[0].SourceID != "alpha" || got[1].SourceID != "mid" || got[2].SourceID != "zeta" {
		t.Fatalf("states not sorted by id: %+v", got)
	}
}

// Package stream maintains resilient metric-stream connections, one
// per source id. Each source prefers the unidirectional push transport
// (Server-Sent Events) and falls back to a websocket; lost connections
// are retried with exponential backoff plus jitter until the attempt
// budget is exhausted.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lodestar-sh/lodestar/pkg/core"
)

// Transport tags which connection type a source is using.
type Transport string

const (
	TransportNone   Transport = "none"
	TransportPush   Transport = "push"
	TransportSocket Transport = "socket"
)

// State is the connection lifecycle state of one source.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateFailed is terminal: the attempt budget is exhausted and no
	// further reconnects are scheduled. Re-subscribing starts over.
	StateFailed State = "failed"
	// StateClosed is terminal: the caller unsubscribed the source.
	StateClosed State = "closed"
)

// ConnState is a snapshot of one source's connection.
type ConnState struct {
	SourceID      string    `json:"source_id"`
	Transport     Transport `json:"transport"`
	State         State     `json:"state"`
	Connected     bool      `json:"connected"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	ConnectedAtMs int64     `json:"connected_at_ms,omitempty"`
}

// Handler receives the manager's notifications. All callbacks are
// invoked synchronously from the source's connection goroutine; a nil
// field disables that notification.
type Handler struct {
	Sample func(sourceID string, point core.MetricPoint)
	State  func(state ConnState)
	Error  func(sourceID string, err error)
}

// Endpoints are the transport URLs for one source. At least one must
// be set; the push URL is always tried first.
type Endpoints struct {
	PushURL   string `json:"push_url,omitempty"`
	SocketURL string `json:"socket_url,omitempty"`
}

// Options configures reconnection behavior.
type Options struct {
	// ReconnectInterval is the backoff base. Default 1s.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds consecutive reconnects before a
	// source is marked failed. Default 10.
	MaxReconnectAttempts int
}

// frameStream is one open transport delivering raw frames.
type frameStream interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// dialer opens transports. Tests substitute a fake.
type dialer interface {
	push(ctx context.Context, url string) (frameStream, error)
	socket(ctx context.Context, url string) (frameStream, error)
}

type netDialer struct{}

func (netDialer) push(ctx context.Context, url string) (frameStream, error) {
	st, err := dialSSE(ctx, url)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (netDialer) socket(ctx context.Context, url string) (frameStream, error) {
	st, err := dialSocket(ctx, url)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Manager tracks one connection per subscribed source id.
type Manager struct {
	handler Handler
	opts    Options
	dial    dialer
	jitter  func() time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	sources map[string]*conn
	closed  bool
}

// conn is the tracked state of one source. Mutable fields are guarded
// by the manager's mutex; the run goroutine owns the reconnect loop.
type conn struct {
	id        string
	endpoints Endpoints
	cancel    context.CancelFunc
	done      chan struct{}
	state     ConnState
	stream    frameStream
}

// NewManager creates a connection manager. The handler's callbacks are
// shared by all sources.
func NewManager(handler Handler, opts Options, logger *slog.Logger) *Manager {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		handler: handler,
		opts:    opts,
		dial:    netDialer{},
		jitter:  jitter,
		now:     time.Now,
		logger:  logger,
		sources: make(map[string]*conn),
	}
}

// Subscribe starts streaming the given source. Subscribing an already
// tracked source is a no-op unless it has failed, in which case the
// connection starts over with a fresh attempt budget.
func (m *Manager) Subscribe(sourceID string, endpoints Endpoints) error {
	if endpoints.PushURL == "" && endpoints.SocketURL == "" {
		return fmt.Errorf("source %s: no endpoints configured", sourceID)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("stream manager is closed")
	}
	if existing, ok := m.sources[sourceID]; ok {
		if existing.state.State != StateFailed {
			m.mu.Unlock()
			return nil
		}
		delete(m.sources, sourceID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:        sourceID,
		endpoints: endpoints,
		cancel:    cancel,
		done:      make(chan struct{}),
		state: ConnState{
			SourceID:  sourceID,
			Transport: TransportNone,
			State:     StateDisconnected,
		},
	}
	m.sources[sourceID] = c
	m.mu.Unlock()

	go m.run(ctx, c)
	return nil
}

// Unsubscribe stops streaming the given source and releases its state.
// It is idempotent: any open transport is closed, a pending reconnect
// timer is cancelled, and the attempt counter is discarded with the
// rest of the state.
func (m *Manager) Unsubscribe(sourceID string) {
	m.mu.Lock()
	c, ok := m.sources[sourceID]
	if ok {
		delete(m.sources, sourceID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.teardown(c)

	final := ConnState{SourceID: sourceID, Transport: TransportNone, State: StateClosed}
	if m.handler.State != nil {
		m.handler.State(final)
	}
}

// Close unsubscribes every tracked source. No reconnect timers survive.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	conns := make([]*conn, 0, len(m.sources))
	for _, c := range m.sources {
		conns = append(conns, c)
	}
	m.sources = make(map[string]*conn)
	m.mu.Unlock()

	for _, c := range conns {
		m.teardown(c)
	}
}

// teardown cancels the run loop, closes any open transport to unblock
// a pending read, and waits for the goroutine to exit.
func (m *Manager) teardown(c *conn) {
	c.cancel()
	m.mu.Lock()
	st := c.stream
	c.stream = nil
	m.mu.Unlock()
	if st != nil {
		st.Close()
	}
	<-c.done
}

// State returns the connection snapshot for one source.
func (m *Manager) State(sourceID string) (ConnState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sources[sourceID]
	if !ok {
		return ConnState{}, false
	}
	return c.state, true
}

// States returns snapshots for all tracked sources, sorted by id.
func (m *Manager) States() []ConnState {
	m.mu.Lock()
	out := make([]ConnState, 0, len(m.sources))
	for _, c := range m.sources {
		out = append(out, c.state)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// run is the per-source connection loop: connect, consume frames,
// back off, repeat until cancelled or the attempt budget runs out.
func (m *Manager) run(ctx context.Context, c *conn) {
	defer close(c.done)
	attempts := 0

	for {
		st, transport, err := m.connect(ctx, c, attempts)
		if err == nil {
			m.setStream(c, st)
			err = m.consume(ctx, c, st, transport, &attempts)
			m.setStream(c, nil)
			st.Close()
		}
		if ctx.Err() != nil {
			return
		}

		if m.handler.Error != nil && err != nil {
			m.handler.Error(c.id, err)
		}

		if attempts >= m.opts.MaxReconnectAttempts {
			m.transition(c, StateFailed, TransportNone, false, attempts, err)
			m.logger.Warn("source failed, reconnect attempts exhausted",
				"source", c.id, "attempts", attempts)
			return
		}

		delay := backoffDelay(m.opts.ReconnectInterval, attempts) + m.jitter()
		attempts++
		m.transition(c, StateReconnecting, TransportNone, false, attempts, err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// connect tries the push transport first and falls back to the socket.
func (m *Manager) connect(ctx context.Context, c *conn, attempts int) (frameStream, Transport, error) {
	var pushErr error
	if c.endpoints.PushURL != "" {
		m.transition(c, StateConnecting, TransportPush, false, attempts, nil)
		st, err := m.dial.push(ctx, c.endpoints.PushURL)
		if err == nil {
			m.transition(c, StateConnected, TransportPush, true, attempts, nil)
			return st, TransportPush, nil
		}
		pushErr = err
		if ctx.Err() != nil {
			return nil, TransportNone, err
		}
		m.logger.Debug("push connect failed, trying socket", "source", c.id, "err", err)
	}

	if c.endpoints.SocketURL != "" {
		m.transition(c, StateConnecting, TransportSocket, false, attempts, nil)
		st, err := m.dial.socket(ctx, c.endpoints.SocketURL)
		if err == nil {
			m.transition(c, StateConnected, TransportSocket, true, attempts, nil)
			return st, TransportSocket, nil
		}
		return nil, TransportNone, err
	}

	return nil, TransportNone, pushErr
}

// consume reads frames until the transport errors out. Individual
// frames that fail to parse are reported and skipped without tearing
// down the connection; the first good frame after a reconnect resets
// the attempt counter.
func (m *Manager) consume(ctx context.Context, c *conn, st frameStream, transport Transport, attempts *int) error {
	for {
		frame, err := st.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("source %s: %w", c.id, err)
		}

		var point core.MetricPoint
		if err := json.Unmarshal(frame, &point); err != nil {
			if m.handler.Error != nil {
				m.handler.Error(c.id, fmt.Errorf("source %s: parse frame: %w", c.id, err))
			}
			continue
		}
		if point.SourceID == "" {
			point.SourceID = c.id
		}

		if *attempts != 0 {
			*attempts = 0
			m.transition(c, StateConnected, transport, true, 0, nil)
		}
		if m.handler.Sample != nil {
			m.handler.Sample(c.id, point)
		}
	}
}

// setStream records the open transport so Unsubscribe can close it to
// unblock a pending read.
func (m *Manager) setStream(c *conn, st frameStream) {
	m.mu.Lock()
	c.stream = st
	m.mu.Unlock()
}

// transition updates a source's snapshot and notifies the handler
// outside the lock.
func (m *Manager) transition(c *conn, state State, transport Transport, connected bool, attempts int, err error) {
	m.mu.Lock()
	c.state.State = state
	c.state.Transport = transport
	c.state.Connected = connected
	c.state.Attempts = attempts
	if err != nil {
		c.state.LastError = err.Error()
	}
	if connected && state == StateConnected {
		c.state.ConnectedAtMs = m.now().UnixMilli()
		c.state.LastError = ""
	}
	snapshot := c.state
	m.mu.Unlock()

	if m.handler.State != nil {
		m.handler.State(snapshot)
	}
}

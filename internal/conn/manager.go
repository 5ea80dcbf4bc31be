// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/noesis-chat/client-core/internal/model"
)

// eventBuffer is the capacity of the push-event channel. A consumer
// that falls this far behind loses events (logged), not the connection.
const eventBuffer = 64

// Default outbound send throttle.
const (
	DefaultSendRate  rate.Limit = 20
	DefaultSendBurst            = 40
)

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithDialer replaces the websocket dialer. Tests use this to inject
// scripted transports.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock replaces the clock used for backoff scheduling and latency
// accounting.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithConfig sets the initial reconnection configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg.sanitize() }
}

// WithRand sets the random source used for jitter.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithSendLimit sets the outbound message throttle.
func WithSendLimit(perSec rate.Limit, burst int) Option {
	return func(m *Manager) { m.limiter = rate.NewLimiter(perSec, burst) }
}

// WithStateListener registers a callback invoked on every state
// transition. The callback runs with internal locks held and must not
// call back into the Manager.
func WithStateListener(fn func(State)) Option {
	return func(m *Manager) { m.listener = fn }
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns one logical duplex connection to the backend.
type Manager struct {
	url    string
	dialer Dialer
	clock  Clock

	mu          sync.Mutex
	cfg         Config
	state       State
	stats       Stats
	conn        Conn
	gen         int // bumped on Disconnect/Reconnect; stale goroutines check it
	attempts    int // consecutive failed attempts since last success or reset
	retryCancel chan struct{}
	rng         *rand.Rand
	listener    func(State)

	writeMu sync.Mutex
	limiter *rate.Limiter
	events  chan model.Event
}

// NewManager creates a manager for the given websocket URL. The manager
// starts idle; nothing happens until Connect.
func NewManager(url string, opts ...Option) *Manager {
	m := &Manager{
		url:     url,
		cfg:     DefaultConfig(),
		state:   StateIdle,
		clock:   SystemClock,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		limiter: rate.NewLimiter(DefaultSendRate, DefaultSendBurst),
		events:  make(chan model.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = WebsocketDialer{HandshakeTimeout: m.cfg.TimeoutDuration}
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a copy of the lifetime connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Events returns the channel of decoded push events. Malformed frames
// never appear here; they are logged and dropped by the read loop.
func (m *Manager) Events() <-chan model.Event {
	return m.events
}

// Configure swaps the reconnection configuration. It takes effect at
// the next delay computation; a timer already scheduled keeps its delay.
func (m *Manager) Configure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.sanitize()
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Connect starts the connection. Calling it while connected, while an
// attempt is pending, or from the failed state is a logged no-op; only
// Reconnect leaves the failed state. Transient dial failures are not
// returned; they feed the backoff schedule and surface through State
// and Stats. The context bounds the whole reconnect lifecycle: when it
// is cancelled, retry scheduling stops.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		log.Printf("conn: Connect ignored, already connected")
		return nil
	case StateConnecting, StateReconnecting:
		state := m.state
		m.mu.Unlock()
		log.Printf("conn: Connect ignored, attempt already pending (state=%s)", state)
		return nil
	case StateFailed:
		m.mu.Unlock()
		log.Printf("conn: Connect ignored in failed state, use Reconnect")
		return nil
	}
	m.setStateLocked(StateConnecting)
	gen := m.gen
	m.mu.Unlock()

	m.dial(ctx, gen)
	return nil
}

// Disconnect cancels any pending reconnect timer and closes the
// connection cleanly. No further attempts are scheduled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	if m.retryCancel != nil {
		close(m.retryCancel)
		m.retryCancel = nil
	}
	c := m.conn
	m.conn = nil
	if m.state != StateIdle {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if c != nil {
		m.writeMu.Lock()
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		m.writeMu.Unlock()
		c.Close()
	}
}

// Reconnect cancels pending work, resets the consecutive-attempt
// counter, and dials again immediately. This is the only way out of the
// failed state.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()

	m.mu.Lock()
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	gen := m.gen
	m.mu.Unlock()

	m.dial(ctx, gen)
	return nil
}

// ReconnectWithReset zeroes the lifetime statistics and reconnects.
func (m *Manager) ReconnectWithReset(ctx context.Context) error {
	m.mu.Lock()
	m.stats = Stats{}
	m.mu.Unlock()
	return m.Reconnect(ctx)
}

// Send marshals payload to JSON and writes it to the connection.
// Returns false when not connected, throttled, or on a write error.
func (m *Manager) Send(payload any) bool {
	m.mu.Lock()
	c := m.conn
	connected := m.state == StateConnected && c != nil
	m.mu.Unlock()

	if !connected {
		log.Printf("conn: Send dropped, not connected")
		return false
	}
	if m.limiter != nil && !m.limiter.Allow() {
		log.Printf("conn: Send throttled")
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("conn: Send marshal failed: %v", err)
		return false
	}

	m.writeMu.Lock()
	err = c.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		log.Printf("conn: Send write failed: %v", err)
		return false
	}
	return true
}

// =============================================================================
// INTERNALS
// =============================================================================

// dial performs one connection attempt bounded by TimeoutDuration. On
// failure it schedules the next retry per the backoff config.
func (m *Manager) dial(ctx context.Context, gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	cfg := m.cfg
	m.stats.TotalAttempts++
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration)
	start := m.clock.Now()
	c, err := m.dialer.DialContext(dctx, m.url)
	cancel()
	latency := m.clock.Now().Sub(start)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return
	}
	if err != nil {
		m.stats.Failures++
		m.stats.ConsecutiveFailures++
		m.attempts++
		log.Printf("conn: attempt %d failed: %v", m.attempts, err)
		m.scheduleRetryLocked(ctx)
		m.mu.Unlock()
		return
	}

	m.conn = c
	m.stats.Successes++
	m.stats.ConsecutiveFailures = 0
	m.stats.LastSuccess = m.clock.Now()
	m.stats.observeLatency(latency)
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.readPump(ctx, c, gen)
}

// scheduleRetryLocked arms the backoff timer for the next attempt, or
// fail-stops when the budget is exhausted. Caller holds m.mu.
func (m *Manager) scheduleRetryLocked(ctx context.Context) {
	if m.attempts >= m.cfg.MaxAttempts {
		log.Printf("conn: retry budget exhausted after %d attempts", m.attempts)
		m.setStateLocked(StateFailed)
		return
	}
	m.setStateLocked(StateReconnecting)

	exp := m.attempts - 1
	if exp < 0 {
		exp = 0
	}
	var rng *rand.Rand
	if m.cfg.EnableJitter {
		rng = m.rng
	}
	delay := Backoff(m.cfg, exp, rng)

	cancelCh := make(chan struct{})
	m.retryCancel = cancelCh
	gen := m.gen
	wait := m.clock.After(delay)

	go func() {
		select {
		case <-wait:
		case <-cancelCh:
			return
		case <-ctx.Done():
			return
		}
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.retryCancel = nil
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()
		m.dial(ctx, gen)
	}()
}

// readPump decodes inbound frames until the connection drops. A read
// error on the current generation marks the connection disconnected and
// feeds the backoff schedule; a stale generation means the closure was
// deliberate.
func (m *Manager) readPump(ctx context.Context, c Conn, gen int) {
	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			c.Close()
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			log.Printf("conn: connection lost: %v", err)
			m.setStateLocked(StateDisconnected)
			m.scheduleRetryLocked(ctx)
			m.mu.Unlock()
			return
		}

		ev, perr := model.ParseEvent(frame)
		if perr != nil {
			// Malformed or unrecognized messages never become
			// connection failures.
			log.Printf("conn: dropping inbound message: %v", perr)
			continue
		}

		select {
		case m.events <- ev:
		default:
			log.Printf("conn: event buffer full, dropping %s", ev.Type)
		}
	}
}

// setStateLocked transitions the state machine. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.listener != nil {
		m.listener(s)
	}
}

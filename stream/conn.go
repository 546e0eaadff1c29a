// Package stream owns the websocket lifecycle: dialing, the connection state
// machine, capped-exponential-backoff reconnection and inbound dispatch.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"sixdot/log"
	"sixdot/protocol"
)

// State is the connection lifecycle state. Transitions:
// Disconnected -> Connecting on Connect, Connecting -> Connected on dial
// success, Connected -> Ready on the server's ready message, any -> Errored
// on a transport error, any -> Disconnected on close.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Ready
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Ready:
		return "ready"
	case Errored:
		return "error"
	}
	return "unknown"
}

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 10 * time.Second
	maxAttempts    = 5
)

// backoffDelay returns min(1s * 2^n, 10s).
func backoffDelay(n int) time.Duration {
	d := baseRetryDelay << n
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}

var (
	// ErrNotConnected is returned by Send when no transport is open.
	ErrNotConnected = errors.New("transport not open")
	// ErrRetriesExhausted is reported after the automatic reconnection
	// ceiling is hit; only an explicit Connect retries further.
	ErrRetriesExhausted = errors.New("reconnection attempts exhausted")
)

// Transport is one open server connection.
type Transport interface {
	// Read blocks for the next frame; binary reports the frame kind.
	Read(ctx context.Context) (binary bool, data []byte, err error)
	WriteText(ctx context.Context, data []byte) error
	WriteBinary(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a Transport to the given URL.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// Sink receives connection events. Calls are made outside the manager lock,
// one batch per transport event, in transition order.
type Sink interface {
	StateChanged(from, to State)
	Inbound(msg protocol.Inbound)
	RetriesExhausted(err error)
}

// Manager drives one server connection per session. All mutation happens
// under mu; sink notifications are collected during mutation and delivered
// after unlock so sink code may call back into the manager.
type Manager struct {
	url  string
	dial DialFunc
	sink Sink

	// afterFunc schedules the reconnect timer; swapped out in tests.
	afterFunc func(time.Duration, func()) *time.Timer

	mu         sync.Mutex
	state      State
	tr         Transport
	attempts   int
	retryTimer *time.Timer
	explicit   bool
	gen        int
	ctx        context.Context
	cancel     context.CancelFunc
	lastErr    error
}

// NewManager creates a disconnected manager. A nil dial uses the websocket
// dialer.
func NewManager(url string, dial DialFunc, sink Sink) *Manager {
	if dial == nil {
		dial = DialWebsocket
	}
	return &Manager{
		url:       url,
		dial:      dial,
		sink:      sink,
		afterFunc: time.AfterFunc,
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent transport error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect starts a connection attempt. It resets the attempt counter, so an
// explicit call always retries even after exhaustion. Connecting while a
// transport is already open or being opened is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Connecting || m.state == Connected || m.state == Ready {
		m.mu.Unlock()
		return errors.New("already connected")
	}
	m.stopRetryTimerLocked()
	m.explicit = false
	m.attempts = 0
	m.lastErr = nil
	connCtx, cancel := context.WithCancel(ctx)
	m.ctx = connCtx
	m.cancel = cancel
	notify := m.startAttemptLocked()
	m.mu.Unlock()
	notify()
	return nil
}

// Disconnect cancels any pending reconnect timer, closes the transport if
// open and forces Disconnected. No reconnection is scheduled afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.explicit = true
	m.stopRetryTimerLocked()
	m.gen++ // orphan any in-flight dial or read loop
	if m.cancel != nil {
		m.cancel()
	}
	tr := m.tr
	m.tr = nil
	from := m.state
	m.state = Disconnected
	m.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	if from != Disconnected {
		log.ConnState(from.String(), Disconnected.String())
		m.sink.StateChanged(from, Disconnected)
	}
}

// Send writes a text frame. It fails soft with ErrNotConnected when the
// transport is not open; callers gate business messages on State.
func (m *Manager) Send(data []byte) error {
	tr, ctx := m.transport()
	if tr == nil {
		return ErrNotConnected
	}
	return tr.WriteText(ctx, data)
}

// SendAudio writes one binary audio frame, same soft-failure contract as Send.
func (m *Manager) SendAudio(frame []byte) error {
	tr, ctx := m.transport()
	if tr == nil {
		return ErrNotConnected
	}
	return tr.WriteBinary(ctx, frame)
}

func (m *Manager) transport() (Transport, context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tr, m.ctx
}

// startAttemptLocked transitions to Connecting and dials in the background.
// It returns the pending state-change notification.
func (m *Manager) startAttemptLocked() func() {
	m.gen++
	gen := m.gen
	ctx := m.ctx
	notify := m.setStateLocked(Connecting)

	go func() {
		tr, err := m.dial(ctx, m.url)

		m.mu.Lock()
		if gen != m.gen || m.explicit {
			m.mu.Unlock()
			if tr != nil {
				tr.Close()
			}
			return
		}
		if err != nil {
			m.lastErr = err
			notifies := []func(){
				m.setStateLocked(Errored),
				m.setStateLocked(Disconnected),
				m.scheduleReconnectLocked(err),
			}
			m.mu.Unlock()
			runAll(notifies)
			return
		}
		m.tr = tr
		connected := m.setStateLocked(Connected)
		m.mu.Unlock()
		connected()

		go m.readLoop(gen, tr)
	}()

	return notify
}

func (m *Manager) readLoop(gen int, tr Transport) {
	for {
		binary, data, err := tr.Read(m.readCtx(gen))
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		if binary {
			// The server never sends binary; protocol error, drop.
			log.ProtocolDrop(protocol.ErrBinaryInbound.Error(), len(data))
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.ProtocolDrop(err.Error(), len(data))
			continue
		}
		m.handleInbound(gen, msg)
	}
}

func (m *Manager) readCtx(gen int) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *Manager) handleInbound(gen int, msg protocol.Inbound) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	var notifies []func()
	if _, ok := msg.(protocol.Ready); ok && m.state == Connected {
		// Send-eligible only from here on; a fresh ready also clears the
		// failure budget.
		m.attempts = 0
		m.lastErr = nil
		notifies = append(notifies, m.setStateLocked(Ready))
	}
	sink := m.sink
	m.mu.Unlock()

	runAll(notifies)
	sink.Inbound(msg)
}

func (m *Manager) handleReadError(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.tr != nil {
		m.tr.Close()
		m.tr = nil
	}
	m.lastErr = err
	var notifies []func()
	if m.explicit {
		notifies = append(notifies, m.setStateLocked(Disconnected))
	} else {
		notifies = append(notifies,
			m.setStateLocked(Errored),
			m.setStateLocked(Disconnected),
			m.scheduleReconnectLocked(err),
		)
	}
	m.mu.Unlock()
	runAll(notifies)
}

// scheduleReconnectLocked arms the single reconnect timer, or reports
// exhaustion once the attempt ceiling is reached.
func (m *Manager) scheduleReconnectLocked(cause error) func() {
	if m.explicit {
		return func() {}
	}
	if m.attempts >= maxAttempts {
		err := cause
		sink := m.sink
		return func() {
			log.Errorf("giving up after %d reconnect attempts: %v", maxAttempts, err)
			sink.RetriesExhausted(errors.Join(ErrRetriesExhausted, err))
		}
	}
	attempt := m.attempts
	delay := backoffDelay(attempt)
	m.attempts++
	m.retryTimer = m.afterFunc(delay, m.onRetryTimer)
	return func() { log.Reconnect(attempt, delay.Milliseconds()) }
}

func (m *Manager) onRetryTimer() {
	m.mu.Lock()
	m.retryTimer = nil
	if m.explicit || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	notify := m.startAttemptLocked()
	m.mu.Unlock()
	notify()
}

func (m *Manager) stopRetryTimerLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// setStateLocked mutates state and returns the deferred sink notification.
func (m *Manager) setStateLocked(to State) func() {
	from := m.state
	if from == to {
		return func() {}
	}
	m.state = to
	sink := m.sink
	return func() {
		log.ConnState(from.String(), to.String())
		sink.StateChanged(from, to)
	}
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

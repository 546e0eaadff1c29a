package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sixdot/protocol"
)

type frame struct {
	binary bool
	data   []byte
}

type fakeTransport struct {
	in     chan frame
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	texts  [][]byte
	binary [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) (bool, []byte, error) {
	select {
	case f := <-t.in:
		return f.binary, f.data, nil
	case <-t.closed:
		return false, nil, errors.New("connection closed")
	case <-ctx.Done():
		return false, nil, ctx.Err()
	}
}

func (t *fakeTransport) WriteText(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, data)
	return nil
}

func (t *fakeTransport) WriteBinary(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.binary = append(t.binary, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) push(raw string) {
	t.in <- frame{data: []byte(raw)}
}

func (t *fakeTransport) pushBinary(data []byte) {
	t.in <- frame{binary: true, data: data}
}

// recordSink records events on channels so tests can wait deterministically.
type recordSink struct {
	states    chan State
	msgs      chan protocol.Inbound
	exhausted chan error
}

func newRecordSink() *recordSink {
	return &recordSink{
		states:    make(chan State, 64),
		msgs:      make(chan protocol.Inbound, 64),
		exhausted: make(chan error, 4),
	}
}

func (s *recordSink) StateChanged(_, to State)     { s.states <- to }
func (s *recordSink) Inbound(msg protocol.Inbound) { s.msgs <- msg }
func (s *recordSink) RetriesExhausted(err error)   { s.exhausted <- err }

func (s *recordSink) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (s *recordSink) waitMsg(t *testing.T) protocol.Inbound {
	t.Helper()
	select {
	case msg := <-s.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
		return nil
	}
}

// fakeClock captures scheduled reconnect timers for manual firing.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) *time.Timer {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
	return time.AfterFunc(time.Hour, func() {})
}

func (c *fakeClock) fireLast() {
	c.mu.Lock()
	fn := c.fns[len(c.fns)-1]
	c.mu.Unlock()
	fn()
}

func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type seqDialer struct {
	mu     sync.Mutex
	count  int
	script []func() (Transport, error)
}

func (d *seqDialer) dial(context.Context, string) (Transport, error) {
	d.mu.Lock()
	i := d.count
	d.count++
	d.mu.Unlock()
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i]()
}

func (d *seqDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func alwaysFail() func() (Transport, error) {
	return func() (Transport, error) { return nil, errors.New("connection refused") }
}

func succeedWith(tr *fakeTransport) func() (Transport, error) {
	return func() (Transport, error) { return tr, nil }
}

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for n, w := range want {
		if got := backoffDelay(n); got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestConnectToReadySequence(t *testing.T) {
	tr := newFakeTransport()
	dialer := &seqDialer{script: []func() (Transport, error){succeedWith(tr)}}
	sink := newRecordSink()
	m := NewManager("ws://test/ws/speech-to-braille", dialer.dial, sink)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Connecting)
	sink.waitState(t, Connected)

	tr.push(`{"type":"ready","message":"ok","model":"m"}`)
	sink.waitState(t, Ready)

	if msg := sink.waitMsg(t); msg != (protocol.Ready{Message: "ok", Model: "m"}) {
		t.Errorf("inbound = %#v", msg)
	}
	if got := m.State(); got != Ready {
		t.Errorf("State() = %v, want Ready", got)
	}
}

func TestSendRequiresOpenTransport(t *testing.T) {
	m := NewManager("ws://test", (&seqDialer{script: []func() (Transport, error){alwaysFail()}}).dial, newRecordSink())
	if err := m.Send([]byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send err = %v, want ErrNotConnected", err)
	}
	if err := m.SendAudio([]byte{0, 0, 0, 0}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendAudio err = %v, want ErrNotConnected", err)
	}
}

func TestBackoffScheduleAndExhaustion(t *testing.T) {
	dialer := &seqDialer{script: []func() (Transport, error){alwaysFail()}}
	sink := newRecordSink()
	clock := &fakeClock{}
	m := NewManager("ws://test", dialer.dial, sink)
	m.afterFunc = clock.afterFunc

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for i := range want {
		sink.waitState(t, Errored)
		sink.waitState(t, Disconnected)
		got := clock.scheduled()
		if len(got) != i+1 {
			t.Fatalf("after failure %d: %d timers scheduled, want %d", i+1, len(got), i+1)
		}
		if got[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, got[i], want[i])
		}
		clock.fireLast()
	}

	// The attempt after the capped delay fails too: persistent error, no
	// sixth timer.
	sink.waitState(t, Disconnected)
	select {
	case err := <-sink.exhausted:
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("exhausted err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exhaustion report")
	}
	if got := clock.scheduled(); len(got) != len(want) {
		t.Errorf("%d timers scheduled after exhaustion, want %d", len(got), len(want))
	}

	// An explicit Connect resets the budget and tries again.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after exhaustion: %v", err)
	}
	sink.waitState(t, Disconnected)
	if got := clock.scheduled(); got[len(got)-1] != 1000*time.Millisecond {
		t.Errorf("delay after explicit reconnect = %v, want 1s", got[len(got)-1])
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	dialer := &seqDialer{script: []func() (Transport, error){alwaysFail()}}
	sink := newRecordSink()
	clock := &fakeClock{}
	m := NewManager("ws://test", dialer.dial, sink)
	m.afterFunc = clock.afterFunc

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Disconnected)
	if dialer.dials() != 1 {
		t.Fatalf("dials = %d, want 1", dialer.dials())
	}

	m.Disconnect()
	// A stale timer firing after Disconnect must not dial.
	clock.fireLast()
	time.Sleep(50 * time.Millisecond)
	if dialer.dials() != 1 {
		t.Errorf("dials after disconnect = %d, want 1", dialer.dials())
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v, want Disconnected", m.State())
	}
}

func TestExplicitDisconnectSkipsReconnect(t *testing.T) {
	tr := newFakeTransport()
	dialer := &seqDialer{script: []func() (Transport, error){succeedWith(tr)}}
	sink := newRecordSink()
	clock := &fakeClock{}
	m := NewManager("ws://test", dialer.dial, sink)
	m.afterFunc = clock.afterFunc

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Connected)

	m.Disconnect()
	sink.waitState(t, Disconnected)
	time.Sleep(50 * time.Millisecond)
	if got := clock.scheduled(); len(got) != 0 {
		t.Errorf("timers scheduled after explicit disconnect: %v", got)
	}
	select {
	case <-tr.closed:
	default:
		t.Error("transport not closed by Disconnect")
	}
}

func TestImplicitCloseReconnectsAndReadyResetsAttempts(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	dialer := &seqDialer{script: []func() (Transport, error){
		succeedWith(tr1),
		succeedWith(tr2),
	}}
	sink := newRecordSink()
	clock := &fakeClock{}
	m := NewManager("ws://test", dialer.dial, sink)
	m.afterFunc = clock.afterFunc

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Connected)
	tr1.push(`{"type":"ready","message":"ok","model":"m"}`)
	sink.waitState(t, Ready)

	// Server drops the connection: error -> disconnected -> 1s timer.
	tr1.Close()
	sink.waitState(t, Errored)
	sink.waitState(t, Disconnected)
	if got := clock.scheduled(); len(got) != 1 || got[0] != time.Second {
		t.Fatalf("scheduled = %v, want [1s]", got)
	}

	clock.fireLast()
	sink.waitState(t, Connected)
	tr2.push(`{"type":"ready","message":"ok","model":"m"}`)
	sink.waitState(t, Ready)

	// Ready reset the budget: the next implicit close starts at 1s again.
	tr2.Close()
	sink.waitState(t, Disconnected)
	got := clock.scheduled()
	if got[len(got)-1] != time.Second {
		t.Errorf("delay after ready reset = %v, want 1s", got[len(got)-1])
	}
}

func TestUnknownAndBinaryFramesAreInert(t *testing.T) {
	tr := newFakeTransport()
	dialer := &seqDialer{script: []func() (Transport, error){succeedWith(tr)}}
	sink := newRecordSink()
	m := NewManager("ws://test", dialer.dial, sink)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Connected)
	tr.push(`{"type":"ready","message":"ok","model":"m"}`)
	sink.waitState(t, Ready)
	sink.waitMsg(t) // the ready message

	tr.push(`{"type":"unknown_type"}`)
	tr.pushBinary([]byte{1, 2, 3})
	tr.push(`not json`)
	// A valid frame after the garbage proves the loop survived.
	tr.push(`{"type":"status","recording":true,"buffer_size":1,"duration_seconds":0.5}`)

	msg := sink.waitMsg(t)
	if _, ok := msg.(protocol.Status); !ok {
		t.Errorf("next inbound = %#v, want Status", msg)
	}
	if m.State() != Ready {
		t.Errorf("state = %v, want Ready", m.State())
	}
}

func TestSendWritesThroughTransport(t *testing.T) {
	tr := newFakeTransport()
	dialer := &seqDialer{script: []func() (Transport, error){succeedWith(tr)}}
	sink := newRecordSink()
	m := NewManager("ws://test", dialer.dial, sink)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, Connected)

	if err := m.Send([]byte(`{"type":"start_recording"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := m.SendAudio([]byte{0, 0, 128, 63}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.texts) != 1 || len(tr.binary) != 1 {
		t.Errorf("texts = %d binary = %d, want 1 and 1", len(tr.texts), len(tr.binary))
	}
}

package audio

import (
	"errors"
	"testing"
	"time"
)

// stubCapture drives the pipeline callback directly from the test.
type stubCapture struct {
	cb       DataCallback
	started  bool
	stopped  bool
	closed   bool
	startErr error
}

func (s *stubCapture) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}
func (s *stubCapture) Stop()                       { s.stopped = true }
func (s *stubCapture) Close()                      { s.closed = true }
func (s *stubCapture) SetCallback(cb DataCallback) { s.cb = cb }
func (s *stubCapture) ClearCallback()              { s.cb = nil }

type stubContext struct {
	capture    *stubCapture
	acquireErr error
}

func (s *stubContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (s *stubContext) Close()                         {}
func (s *stubContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	return s.capture, nil
}

func ramp(n int, base float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = base + float32(i)
	}
	return out
}

func TestPipelineFramesInOrder(t *testing.T) {
	stub := &stubCapture{}
	p, err := Start(&stubContext{capture: stub}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// Feed 1.5 frames, consume the full one, feed the other half.
	p.onData(ramp(FrameSize, 0))
	p.onData(ramp(FrameSize/2, 1000))

	select {
	case frame := <-p.Frames():
		if len(frame) != FrameSize {
			t.Fatalf("frame len = %d, want %d", len(frame), FrameSize)
		}
		if frame[0] != 0 || frame[FrameSize-1] != float32(FrameSize-1) {
			t.Errorf("frame out of order: first=%v last=%v", frame[0], frame[FrameSize-1])
		}
	case <-time.After(time.Second):
		t.Fatal("no frame produced")
	}

	p.onData(ramp(FrameSize/2, 2000))
	select {
	case frame := <-p.Frames():
		if frame[0] != 1000 {
			t.Errorf("second frame starts at %v, want 1000", frame[0])
		}
	case <-time.After(time.Second):
		t.Fatal("no second frame produced")
	}
}

func TestPipelineDropsWhenSlotFull(t *testing.T) {
	stub := &stubCapture{}
	p, err := Start(&stubContext{capture: stub}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// Nobody consumes: the first frame fills the slot, the rest are dropped.
	for range 3 {
		p.onData(ramp(FrameSize, 0))
	}
	if got := p.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if got := p.Produced(); got != 1 {
		t.Errorf("Produced() = %d, want 1", got)
	}
}

func TestPipelineStopDropsLateCallbacks(t *testing.T) {
	stub := &stubCapture{}
	p, err := Start(&stubContext{capture: stub}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cb := stub.cb

	p.Stop()
	if !stub.stopped || !stub.closed {
		t.Error("Stop did not release the device")
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done not closed after Stop")
	}

	// A callback firing after Stop must not deliver anything.
	cb(ramp(FrameSize, 0))
	select {
	case <-p.Frames():
		t.Error("frame delivered after Stop")
	default:
	}

	p.Stop() // idempotent
}

func TestPipelineTapsObserveSamples(t *testing.T) {
	stub := &stubCapture{}
	var seen int
	tap := func(samples []float32) { seen += len(samples) }
	p, err := Start(&stubContext{capture: stub}, nil, tap)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	p.onData(ramp(100, 0))
	p.onData(ramp(50, 0))
	if seen != 150 {
		t.Errorf("tap saw %d samples, want 150", seen)
	}
	// Tap observation must not consume frames.
	if got := p.Produced() + p.Dropped(); got != 0 {
		t.Errorf("frames produced from partial buffer: %d", got)
	}
}

func TestStartReportsAcquisitionFailure(t *testing.T) {
	wantErr := errors.New("mic busy")
	if _, err := Start(&stubContext{acquireErr: wantErr}, nil); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}

	stub := &stubCapture{startErr: errors.New("device gone")}
	if _, err := Start(&stubContext{capture: stub}, nil); err == nil {
		t.Error("expected start error")
	}
	if !stub.closed {
		t.Error("capture not closed after failed start")
	}
}

func TestLevel(t *testing.T) {
	if got := Level([]float32{0, 0.25, -0.5}); got != 0.5 {
		t.Errorf("Level = %v, want 0.5", got)
	}
	if got := Level([]float32{2, -3}); got != 1 {
		t.Errorf("Level clamps to 1, got %v", got)
	}
	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v, want 0", got)
	}
}

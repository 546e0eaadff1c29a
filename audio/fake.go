package audio

import (
	"sync"
	"time"
)

const fakeChunk = 1024

// FakeContext feeds canned samples instead of a real device.
type FakeContext struct {
	samples  []float32
	realtime bool
}

func NewFakeContext(samples []float32, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{samples: f.samples, realtime: f.realtime}, nil
}

type FakeCapture struct {
	samples  []float32
	realtime bool

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	interval := time.Duration(fakeChunk) * time.Second / SampleRate
	if !f.realtime {
		interval = time.Millisecond
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]float32, fakeChunk)
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}

			cb := f.callback()
			if cb == nil {
				continue
			}

			if pos < len(f.samples) {
				end := min(pos+fakeChunk, len(f.samples))
				chunk := make([]float32, end-pos)
				copy(chunk, f.samples[pos:end])
				pos = end
				cb(chunk)
			} else {
				cb(silence)
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {}

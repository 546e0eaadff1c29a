package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Tap observes captured samples without affecting frame delivery. Taps run
// on the device callback and must return quickly.
type Tap func(samples []float32)

// Pipeline turns device callbacks into fixed FrameSize sample frames and
// hands them to a single consumer through a one-slot channel. A frame
// produced while the previous one is still unsent is dropped, never queued:
// live audio favors recency over completeness.
type Pipeline struct {
	capture CaptureDevice
	taps    []Tap

	mu      sync.Mutex
	buf     []float32
	stopped bool

	frames  chan []float32
	done    chan struct{}
	dropped atomic.Int64
	sent    atomic.Int64
}

// Start acquires the capture device and begins producing frames. Acquisition
// failure is returned to the caller and leaves nothing running.
func Start(ctx Context, device *DeviceInfo, taps ...Tap) (*Pipeline, error) {
	p := &Pipeline{
		taps:   taps,
		frames: make(chan []float32, 1),
		done:   make(chan struct{}),
	}

	capture, err := ctx.NewCapture(device, CaptureConfig{
		SampleRate: SampleRate,
		Channels:   Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring capture device: %w", err)
	}
	p.capture = capture

	capture.SetCallback(p.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, fmt.Errorf("starting capture: %w", err)
	}
	return p, nil
}

// Frames delivers complete frames in production order.
func (p *Pipeline) Frames() <-chan []float32 {
	return p.frames
}

// Done is closed by Stop.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Dropped reports frames discarded because the consumer was busy.
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}

// Produced reports frames handed to the consumer slot.
func (p *Pipeline) Produced() int64 {
	return p.sent.Load()
}

// Stop releases the device and guarantees that no frame is delivered after
// it returns; a device callback firing late is dropped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.buf = nil
	p.mu.Unlock()

	p.capture.ClearCallback()
	p.capture.Stop()
	p.capture.Close()
	close(p.done)
}

// onData runs on the device callback. The channel hand-off happens under the
// mutex so Stop cannot complete between the stopped check and the send.
func (p *Pipeline) onData(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	for _, tap := range p.taps {
		tap(samples)
	}

	p.buf = append(p.buf, samples...)
	for len(p.buf) >= FrameSize {
		frame := make([]float32, FrameSize)
		copy(frame, p.buf[:FrameSize])
		p.buf = p.buf[FrameSize:]

		select {
		case p.frames <- frame:
			p.sent.Add(1)
		default:
			p.dropped.Add(1)
		}
	}
}

// Level returns the peak absolute amplitude of a sample block, normalized to
// [0, 1]. Used by the visualization tap.
func Level(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak > 1 {
		peak = 1
	}
	return peak
}

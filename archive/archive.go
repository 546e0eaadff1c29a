// Package archive writes captured session audio to FLAC files so a recording
// can be replayed or re-translated later. It consumes the same float32 frames
// the network sender does, via a pipeline tap.
package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"sixdot/audio"
)

const bitsPerSample = 16

// Archiver accumulates one session's audio and flushes it as a single FLAC
// file on Close. Tap is safe to call from the capture callback.
type Archiver struct {
	dir string

	mu      sync.Mutex
	buf     bytes.Buffer
	enc     *flac.Encoder
	pending []int16
	samples uint64
	closed  bool
}

// New creates an archiver targeting dir, creating it if needed.
func New(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	a := &Archiver{dir: dir}
	info := &meta.StreamInfo{
		BlockSizeMin:  audio.FrameSize,
		BlockSizeMax:  audio.FrameSize,
		SampleRate:    audio.SampleRate,
		NChannels:     audio.Channels,
		BitsPerSample: bitsPerSample,
	}
	enc, err := flac.NewEncoder(&a.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	a.enc = enc
	return a, nil
}

// Tap consumes one capture frame. Samples are clamped to [-1, 1] before the
// int16 conversion; partial blocks are held back until a full block exists.
func (a *Archiver) Tap(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		a.pending = append(a.pending, int16(s*32767))
	}

	for len(a.pending) >= audio.FrameSize {
		if err := a.writeBlock(a.pending[:audio.FrameSize]); err != nil {
			// The encoder is wedged; stop accepting audio but keep what we
			// have for Close to flush.
			a.closed = true
			return
		}
		a.pending = a.pending[audio.FrameSize:]
	}
}

// Samples reports how many samples have been encoded so far.
func (a *Archiver) Samples() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}

func (a *Archiver) writeBlock(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    audio.SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: bitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples32,
			NSamples:  len(block),
		}},
	}

	if err := a.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	a.samples += uint64(len(block))
	return nil
}

// Close flushes any partial block, finalizes the stream and writes the file.
// It returns the written path, or an empty path when no audio was captured.
func (a *Archiver) Close() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil {
		return "", nil
	}

	a.closed = true
	if len(a.pending) > 0 {
		if err := a.writeBlock(a.pending); err != nil {
			return "", err
		}
		a.pending = nil
	}
	if err := a.enc.Close(); err != nil {
		return "", fmt.Errorf("closing flac encoder: %w", err)
	}
	a.enc = nil

	if a.samples == 0 {
		return "", nil
	}

	path := filepath.Join(a.dir, time.Now().Format("session-20060102-150405")+".flac")
	if err := os.WriteFile(path, a.buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	return path, nil
}

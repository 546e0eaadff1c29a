// Package session orchestrates one speech-to-braille session: it owns the
// recording lifecycle, forwards captured frames to the connection, folds
// inbound server events into session flags and accumulates results.
package session

import (
	"errors"
	"fmt"
	"sync"

	"sixdot/audio"
	"sixdot/log"
	"sixdot/protocol"
	"sixdot/stream"
)

var (
	// ErrNotReady rejects operations that need a ready connection.
	ErrNotReady = errors.New("connection not ready")
	// ErrAlreadyRecording rejects a second Start without a Stop.
	ErrAlreadyRecording = errors.New("already recording")
)

// Conn is the slice of the connection manager the controller uses.
// *stream.Manager implements it.
type Conn interface {
	State() stream.State
	Send(data []byte) error
	SendAudio(frame []byte) error
}

// Status is the single externally visible session status, derived from the
// flags by fixed precedence.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusResult
	StatusProcessing
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusResult:
		return "result"
	case StatusProcessing:
		return "processing"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Snapshot mirrors the server's periodic status message.
type Snapshot struct {
	Recording       bool
	BufferSize      int
	DurationSeconds float64
}

// Observer receives session-level events for display. All methods are called
// from controller goroutines; implementations must not block.
type Observer interface {
	StatusChanged(s Status)
	ResultAdded(r protocol.Result)
	SpeakingChanged(speaking bool)
	SnapshotUpdated(s Snapshot)
	ServerVAD(v protocol.VADStatus)
}

type nopObserver struct{}

func (nopObserver) StatusChanged(Status)         {}
func (nopObserver) ResultAdded(protocol.Result)  {}
func (nopObserver) SpeakingChanged(bool)         {}
func (nopObserver) SnapshotUpdated(Snapshot)     {}
func (nopObserver) ServerVAD(protocol.VADStatus) {}

// Controller composes the connection, the capture pipeline and the result
// accumulator behind start/stop/updateConfig operations.
type Controller struct {
	conn     Conn
	audioCtx audio.Context
	obs      Observer
	acc      Accumulator

	mu         sync.Mutex
	cfg        protocol.SessionConfig
	serverCfg  protocol.SessionConfig
	device     *audio.DeviceInfo
	taps       []audio.Tap
	pipeline   *audio.Pipeline
	senderDone chan struct{}

	recording   bool
	speaking    bool
	processing  bool
	resultSince bool
	lastError   string
	snapshot    Snapshot
	serverVAD   protocol.VADStatus
	lastStatus  Status
}

func New(conn Conn, audioCtx audio.Context, cfg protocol.SessionConfig, obs Observer) *Controller {
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.Task == "" {
		cfg.Task = protocol.DefaultTask
	}
	return &Controller{
		conn:     conn,
		audioCtx: audioCtx,
		obs:      obs,
		cfg:      cfg,
	}
}

// SetDevice selects the capture device for subsequent Start calls.
func (c *Controller) SetDevice(d *audio.DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = d
}

// AddTap registers a non-destructive sample consumer (level meter, local
// VAD, archiver) for subsequent Start calls.
func (c *Controller) AddTap(t audio.Tap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = append(c.taps, t)
}

// Accumulated exposes the session's result accumulation read-only views.
func (c *Controller) Accumulated() *Accumulator {
	return &c.acc
}

// Config returns the locally applied session config.
func (c *Controller) Config() protocol.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// ServerConfig returns the last config echoed by the server.
func (c *Controller) ServerConfig() protocol.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCfg
}

// LastError returns the currently surfaced error message, empty if none.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// StatusSnapshot returns the last server status message contents.
func (c *Controller) StatusSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Recording reports whether the capture pipeline is engaged.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// DerivedStatus evaluates the fixed precedence: error, processing, result
// since recording start, recording, idle. First match wins.
func (c *Controller) DerivedStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.derivedStatusLocked()
}

func (c *Controller) derivedStatusLocked() Status {
	switch {
	case c.lastError != "":
		return StatusError
	case c.processing:
		return StatusProcessing
	case c.resultSince:
		return StatusResult
	case c.recording:
		return StatusRecording
	default:
		return StatusIdle
	}
}

// Start engages the capture pipeline and announces the recording to the
// server. It requires a ready connection; a device failure is reported to
// the caller and leaves the connection untouched.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	if c.conn.State() != stream.Ready {
		c.mu.Unlock()
		return fmt.Errorf("%w: start recording", ErrNotReady)
	}

	c.resultSince = false
	c.snapshot = Snapshot{}
	c.acc.Reset()

	pipeline, err := audio.Start(c.audioCtx, c.device, c.taps...)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("engaging audio pipeline: %w", err)
	}
	c.pipeline = pipeline
	c.senderDone = make(chan struct{})
	c.recording = true
	done := c.senderDone
	c.mu.Unlock()

	go c.runSender(pipeline, done)

	if err := c.conn.Send(protocol.StartRecording()); err != nil {
		log.Warnf("start_recording not sent: %v", err)
	}
	c.notifyStatus()
	return nil
}

// Stop disengages the capture pipeline and tells the server, best effort.
// After it returns no further audio frame is sent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	pipeline := c.pipeline
	done := c.senderDone
	c.pipeline = nil
	c.recording = false
	c.mu.Unlock()

	pipeline.Stop()
	<-done
	log.SessionMetrics(log.SessionMetricsData{
		SentFrames:    int(pipeline.Produced()),
		DroppedFrames: int(pipeline.Dropped()),
		Results:       c.acc.Count(),
	})

	if err := c.conn.Send(protocol.StopRecording()); err != nil {
		log.Warnf("stop_recording not sent: %v", err)
	}
	c.notifyStatus()
}

// UpdateConfig applies cfg locally and mirrors it to the server. It is only
// transmitted on a ready connection; exactly one config message per call.
func (c *Controller) UpdateConfig(cfg protocol.SessionConfig) error {
	if cfg.Task == "" {
		cfg.Task = protocol.DefaultTask
	}
	msg, err := protocol.ConfigMessage(cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn.State() != stream.Ready {
		c.mu.Unlock()
		return fmt.Errorf("%w: config update", ErrNotReady)
	}
	// Local config is live before any server acknowledgment.
	c.cfg = cfg
	c.mu.Unlock()

	return c.conn.Send(msg)
}

// runSender forwards frames in production order until the pipeline stops.
// A frame that cannot be sent is dropped, never retried.
func (c *Controller) runSender(p *audio.Pipeline, done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-p.Frames():
			if err := c.conn.SendAudio(protocol.EncodePCM(frame)); err != nil {
				log.Warnf("audio frame dropped: %v", err)
			}
		case <-p.Done():
			return
		}
	}
}

// StateChanged implements stream.Sink. Transport loss tears down the capture
// pipeline; reaching ready clears the surfaced error and pushes the session
// config, since the server starts every connection on its own defaults.
func (c *Controller) StateChanged(_, to stream.State) {
	switch to {
	case stream.Ready:
		c.mu.Lock()
		c.lastError = ""
		cfg := c.cfg
		c.mu.Unlock()
		if msg, err := protocol.ConfigMessage(cfg); err == nil {
			if err := c.conn.Send(msg); err != nil {
				log.Warnf("config not sent: %v", err)
			}
		}
	case stream.Disconnected, stream.Errored:
		c.stopOnLoss()
	}
	c.notifyStatus()
}

// stopOnLoss disengages the pipeline without the stop_recording farewell;
// the transport is gone.
func (c *Controller) stopOnLoss() {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	pipeline := c.pipeline
	done := c.senderDone
	c.pipeline = nil
	c.recording = false
	c.mu.Unlock()

	pipeline.Stop()
	<-done
	log.Warn("recording stopped: transport lost")
}

// RetriesExhausted implements stream.Sink.
func (c *Controller) RetriesExhausted(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
	c.notifyStatus()
}

// Inbound implements stream.Sink: the closed dispatch over server messages.
func (c *Controller) Inbound(msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Ready:
		// State transition handled by the manager; nothing session-level.

	case protocol.ConfigUpdated:
		c.mu.Lock()
		c.serverCfg = m.Config
		c.mu.Unlock()

	case protocol.RecordingStarted:
		c.acc.Reset()
		c.mu.Lock()
		c.resultSince = false
		c.lastError = ""
		c.mu.Unlock()

	case protocol.RecordingStopped:
		// Informational; teardown already happened in Stop.

	case protocol.SpeechStarted:
		c.setSpeaking(true)

	case protocol.SpeechEnded:
		c.setSpeaking(false)

	case protocol.VADStatus:
		c.mu.Lock()
		c.serverVAD = m
		c.mu.Unlock()
		c.obs.ServerVAD(m)

	case protocol.Status:
		snap := Snapshot{
			Recording:       m.Recording,
			BufferSize:      m.BufferSize,
			DurationSeconds: m.DurationSeconds,
		}
		c.mu.Lock()
		c.snapshot = snap
		c.mu.Unlock()
		c.obs.SnapshotUpdated(snap)

	case protocol.Processing:
		c.mu.Lock()
		c.processing = true
		c.mu.Unlock()

	case protocol.Result:
		c.acc.Add(m)
		c.mu.Lock()
		c.processing = false
		c.resultSince = true
		if m.Success {
			c.lastError = ""
		}
		c.mu.Unlock()
		log.ResultText(m.TranscribedText, m.Braille)
		c.obs.ResultAdded(m)

	case protocol.ServerError:
		c.mu.Lock()
		c.lastError = m.Message
		c.processing = false
		c.mu.Unlock()
		log.Errorf("server error: %s", m.Message)
	}
	c.notifyStatus()
}

func (c *Controller) setSpeaking(speaking bool) {
	c.mu.Lock()
	changed := c.speaking != speaking
	c.speaking = speaking
	c.mu.Unlock()
	if changed {
		c.obs.SpeakingChanged(speaking)
	}
}

// notifyStatus reports derived-status changes, collapsing no-ops.
func (c *Controller) notifyStatus() {
	c.mu.Lock()
	status := c.derivedStatusLocked()
	changed := status != c.lastStatus
	c.lastStatus = status
	c.mu.Unlock()
	if changed {
		c.obs.StatusChanged(status)
	}
}

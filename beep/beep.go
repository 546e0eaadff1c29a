// Package beep plays short audible cues so a user who cannot watch the screen
// still knows when recording starts, stops, a result lands, or something broke.
package beep

import "sync/atomic"

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Recording start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Recording stop: medium pitch, slightly longer
	stopFreq   = 900
	stopVolume = 0.5
	stopDecay  = 40

	// Result arrived: two quick rising ticks
	resultFreq   = 1500
	resultVolume = 0.4
	resultDecay  = 50

	// Error: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

func PlayStart() {
	if disabled.Load() {
		return
	}
	play(cueStart)
}

func PlayStop() {
	if disabled.Load() {
		return
	}
	play(cueStop)
}

func PlayResult() {
	if disabled.Load() {
		return
	}
	play(cueResult)
}

func PlayError() {
	if disabled.Load() {
		return
	}
	play(cueError)
}

type cue int

const (
	cueStart cue = iota
	cueStop
	cueResult
	cueError
)

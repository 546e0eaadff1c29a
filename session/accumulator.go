package session

import (
	"sync"
	"unicode/utf8"

	"sixdot/protocol"
)

// Accumulator keeps the ordered results of one recording session. It is
// cleared exactly when the server confirms recording_started, so its length
// always equals the result events received since then.
type Accumulator struct {
	mu       sync.Mutex
	segments []protocol.Result
	latest   *protocol.Result
}

// Reset drops all accumulated results and the latest-result pointer.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = nil
	a.latest = nil
}

// Add appends a result in arrival order and makes it the latest.
func (a *Accumulator) Add(r protocol.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = append(a.segments, r)
	a.latest = &a.segments[len(a.segments)-1]
}

// Results returns a copy of the accumulation in arrival order.
func (a *Accumulator) Results() []protocol.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.Result, len(a.segments))
	copy(out, a.segments)
	return out
}

// Latest returns the most recent result, if any.
func (a *Accumulator) Latest() (protocol.Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return protocol.Result{}, false
	}
	return *a.latest, true
}

// Count returns the number of accumulated results.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// BrailleChars returns the total braille rune count across the session,
// computed on demand so it can never drift from the accumulation.
func (a *Accumulator) BrailleChars() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, r := range a.segments {
		total += utf8.RuneCountInString(r.Braille)
	}
	return total
}

// TextChars returns the total transcript rune count across the session.
func (a *Accumulator) TextChars() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, r := range a.segments {
		total += utf8.RuneCountInString(r.TranscribedText)
	}
	return total
}

package main

import "testing"

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := newSilenceMonitor(false)
	// 79 ticks of silence — no warning yet
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	// 80th tick triggers warning (8s)
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor(false)
	feedN(m, false, 80) // triggers warn

	// Sustained speech clears warning (need 25% of the 80-tick window)
	for i := 0; i < 80; i++ {
		if ev := m.Tick(true); ev == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newSilenceMonitor(false)
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestRepeatCueEvery8s(t *testing.T) {
	m := newSilenceMonitor(false)
	if ev := feedN(m, false, 80); ev != SilenceWarn {
		t.Fatal("setup: no warn at 8s")
	}
	if ev := feedN(m, false, 80); ev != SilenceRepeat {
		t.Fatalf("expected SilenceRepeat at 16s, got %d", ev)
	}
}

func TestAutoStopAfter30s(t *testing.T) {
	m := newSilenceMonitor(true)
	var sawStop bool
	for i := 0; i < 300; i++ {
		if m.Tick(false) == SilenceAutoStop {
			sawStop = true
			break
		}
	}
	if !sawStop {
		t.Fatal("expected SilenceAutoStop within 30s of silence")
	}
}

func TestNoAutoStopWhenDisabled(t *testing.T) {
	m := newSilenceMonitor(false)
	for i := 0; i < 400; i++ {
		if m.Tick(false) == SilenceAutoStop {
			t.Fatalf("auto-stop fired while disabled, tick %d", i)
		}
	}
}

func TestResetStartsFreshWindow(t *testing.T) {
	m := newSilenceMonitor(false)
	feedN(m, false, 80) // warned
	m.Reset()
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("event %d at tick %d after reset", ev, i)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatal("warn threshold not restored after reset")
	}
}

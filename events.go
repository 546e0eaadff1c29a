package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"sixdot/beep"
	"sixdot/protocol"
	"sixdot/session"
	"sixdot/stream"
)

// uiObserver forwards session events into the Bubble Tea program. Controller
// callbacks never run on the render goroutine, so everything goes through
// Program.Send.
type uiObserver struct {
	send func(tea.Msg)
	cues bool
}

func (o *uiObserver) StatusChanged(s session.Status) {
	o.send(StatusMsg{Status: s})
	if o.cues && s == session.StatusError {
		beep.PlayError()
	}
}

func (o *uiObserver) ResultAdded(r protocol.Result) {
	o.send(ResultMsg{Result: r})
	if o.cues {
		beep.PlayResult()
	}
}

func (o *uiObserver) SpeakingChanged(speaking bool) {
	o.send(SpeakingMsg{Active: speaking})
}

func (o *uiObserver) SnapshotUpdated(s session.Snapshot) {
	o.send(SnapshotMsg{Snapshot: s})
}

func (o *uiObserver) ServerVAD(v protocol.VADStatus) {
	o.send(ServerVADMsg{Status: v})
}

// fanoutSink is the Manager's sink: session control goes to the controller,
// and connection state transitions are mirrored to the TUI.
type fanoutSink struct {
	ctrl *session.Controller
	send func(tea.Msg)
}

func (f *fanoutSink) StateChanged(from, to stream.State) {
	f.ctrl.StateChanged(from, to)
	f.send(ConnStateMsg{From: from, To: to})
}

func (f *fanoutSink) Inbound(msg protocol.Inbound) {
	f.ctrl.Inbound(msg)
}

func (f *fanoutSink) RetriesExhausted(err error) {
	f.ctrl.RetriesExhausted(err)
	f.send(GaveUpMsg{Err: err})
}

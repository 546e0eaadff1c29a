package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sixdot/protocol"
	"sixdot/session"
	"sixdot/stream"
)

// TUI message types
type ConnStateMsg struct{ From, To stream.State }
type StatusMsg struct{ Status session.Status }
type ResultMsg struct{ Result protocol.Result }
type SpeakingMsg struct{ Active bool }
type SnapshotMsg struct{ Snapshot session.Snapshot }
type ServerVADMsg struct{ Status protocol.VADStatus }
type AudioLevelMsg struct{ Level float64 }
type SilenceMsg struct{ Event SilenceEvent }
type GaveUpMsg struct{ Err error }
type CopiedMsg struct{ What string }
type ErrLineMsg struct{ Text string }
type tickMsg time.Time

var (
	styleReady      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleConnecting = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleOffline    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleErrored    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleRec        = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleWarn       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleDim        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleFaint      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleText       = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleBraille    = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	styleTitle      = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	styleCopied     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleMeterOn    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleMeterHot   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type tuiModel struct {
	app *app

	width, height int

	connState   stream.State
	status      session.Status
	recStart    time.Time
	snapshot    session.Snapshot
	audioLevel  float64
	speaking    bool
	serverVAD   protocol.VADStatus
	silenceWarn bool
	gaveUp      bool

	lastResult  protocol.Result
	haveResult  bool
	resultCount int
	copied      string
	errLine     string
}

func newTUIProgram(a *app) *tea.Program {
	return tea.NewProgram(tuiModel{app: a, connState: stream.Disconnected}, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tuiTick()

	case ConnStateMsg:
		m.connState = msg.To
		if msg.To == stream.Ready {
			m.gaveUp = false
		}

	case StatusMsg:
		if msg.Status == session.StatusRecording && m.status != session.StatusRecording {
			m.recStart = time.Now()
		}
		m.status = msg.Status
		if msg.Status != session.StatusRecording {
			m.audioLevel = 0
			m.silenceWarn = false
		}

	case ResultMsg:
		m.lastResult = msg.Result
		m.haveResult = true
		m.resultCount++
		m.copied = ""

	case SpeakingMsg:
		m.speaking = msg.Active

	case SnapshotMsg:
		m.snapshot = msg.Snapshot

	case ServerVADMsg:
		m.serverVAD = msg.Status

	case AudioLevelMsg:
		// Smooth the meter so single loud frames don't flicker.
		m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4

	case SilenceMsg:
		switch msg.Event {
		case SilenceWarn, SilenceRepeat:
			m.silenceWarn = true
		case SilenceWarnClear:
			m.silenceWarn = false
		case SilenceAutoStop:
			m.silenceWarn = false
			return m, m.app.stopCmd()
		}

	case GaveUpMsg:
		m.gaveUp = true

	case CopiedMsg:
		m.copied = msg.What

	case ErrLineMsg:
		m.errLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case " ":
		if m.app.ctrl.Recording() {
			return m, m.app.stopCmd()
		}
		return m, m.app.startCmd()
	case "c":
		return m, m.app.connectCmd()
	case "d":
		return m, m.app.disconnectCmd()
	case "y":
		if m.haveResult {
			return m, m.app.copyCmd(m.lastResult.Braille, "braille")
		}
	case "t":
		if m.haveResult {
			return m, m.app.copyCmd(m.lastResult.TranscribedText, "text")
		}
	}
	return m, nil
}

func (m tuiModel) connLine() string {
	switch m.connState {
	case stream.Ready:
		return styleReady.Render("● " + m.connState.String())
	case stream.Connecting, stream.Connected:
		return styleConnecting.Render("◌ " + m.connState.String())
	case stream.Errored:
		return styleErrored.Render("✕ " + m.connState.String())
	default:
		if m.gaveUp {
			return styleErrored.Render("✕ disconnected (gave up, press c)")
		}
		return styleOffline.Render("○ " + m.connState.String())
	}
}

func (m tuiModel) statusLine() string {
	switch m.status {
	case session.StatusRecording:
		dur := m.snapshot.DurationSeconds
		if dur == 0 && !m.recStart.IsZero() {
			dur = time.Since(m.recStart).Seconds()
		}
		line := styleRec.Render(fmt.Sprintf("● REC %.1fs", dur))
		if m.speaking {
			line += styleReady.Render("  speech")
		}
		return line
	case session.StatusProcessing:
		return styleConnecting.Render("… processing")
	case session.StatusResult:
		return styleReady.Render("✓ translated")
	case session.StatusError:
		return styleErrored.Render("✕ error")
	default:
		return styleOffline.Render("○ idle")
	}
}

func (m tuiModel) meterLine() string {
	if m.status != session.StatusRecording {
		return ""
	}
	const width = 24
	on := int(m.audioLevel * width)
	if on > width {
		on = width
	}
	style := styleMeterOn
	if m.audioLevel > 0.9 {
		style = styleMeterHot
	}
	return style.Render(strings.Repeat("▮", on)) + styleFaint.Render(strings.Repeat("▯", width-on))
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var left []string
	left = append(left, m.connLine())
	left = append(left, m.statusLine())
	if meter := m.meterLine(); meter != "" {
		left = append(left, meter)
	}
	if m.silenceWarn {
		left = append(left, styleWarn.Render("⚠ no voice detected"))
	}
	if m.serverVAD.Enabled {
		left = append(left, styleDim.Render(fmt.Sprintf("server vad: %.2f", m.serverVAD.Probability)))
	}
	if m.errLine != "" {
		left = append(left, styleErrored.Render(m.errLine))
	} else if m.app.ctrl.LastError() != "" {
		left = append(left, styleErrored.Render(m.app.ctrl.LastError()))
	}

	left = append(left, "")
	cfg := m.app.ctrl.Config()
	left = append(left, styleDim.Render(fmt.Sprintf("table: %s  lang: %s", cfg.BrailleTable, cfg.Language)))
	left = append(left, styleDim.Render(m.app.deviceLine))
	if m.app.serverLine != "" {
		left = append(left, styleDim.Render(m.app.serverLine))
	}
	left = append(left, "")
	left = append(left, styleFaint.Bold(true).Render("space")+styleFaint.Render(" record  ")+
		styleFaint.Bold(true).Render("y")+styleFaint.Render(" copy braille  ")+
		styleFaint.Bold(true).Render("t")+styleFaint.Render(" copy text"))
	left = append(left, styleFaint.Bold(true).Render("c")+styleFaint.Render(" connect  ")+
		styleFaint.Bold(true).Render("d")+styleFaint.Render(" disconnect  ")+
		styleFaint.Bold(true).Render("q")+styleFaint.Render(" quit"))
	left = append(left, styleFaint.Render("sixdot "+version))

	const leftWidth = 34
	rightWidth := m.width - leftWidth - 1
	if rightWidth < 20 {
		rightWidth = 20
	}
	wrapWidth := rightWidth - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var right strings.Builder
	if m.haveResult {
		acc := m.app.ctrl.Accumulated()
		right.WriteString(styleTitle.Render(fmt.Sprintf("Result #%d (%d braille cells this session)",
			m.resultCount, acc.BrailleChars())) + "\n\n")

		for _, line := range wrapText(m.lastResult.TranscribedText, wrapWidth) {
			right.WriteString(styleText.Render(line) + "\n")
		}
		right.WriteString("\n")
		lines := wrapText(m.lastResult.Braille, wrapWidth)
		for i, line := range lines {
			right.WriteString(styleBraille.Render(line))
			if i == len(lines)-1 && m.copied != "" {
				right.WriteString(" " + styleCopied.Render("[✓ "+m.copied+" copied]"))
			}
			right.WriteString("\n")
		}
		if m.lastResult.TableUsed != "" {
			right.WriteString("\n" + styleDim.Render(fmt.Sprintf("%s · %.1fs audio",
				m.lastResult.TableUsed, m.lastResult.AudioDuration)))
		}
	} else {
		right.WriteString(styleDim.Render("No translations yet"))
	}

	leftPanel := lipgloss.NewStyle().
		Width(leftWidth).
		Height(m.height).
		Render(strings.Join(left, "\n"))
	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = runes[splitAt:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

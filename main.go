package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sixdot/api"
	"sixdot/archive"
	"sixdot/audio"
	"sixdot/beep"
	"sixdot/clipboard"
	"sixdot/config"
	"sixdot/log"
	"sixdot/prefs"
	"sixdot/protocol"
	"sixdot/session"
	"sixdot/shutdown"
	"sixdot/stream"
)

var version = "dev"

// app owns the long-lived pieces and exposes the TUI's actions as commands.
type app struct {
	ctrl *session.Controller
	mgr  *stream.Manager

	program    *tea.Program
	programMu  sync.Mutex
	deviceLine string
	serverLine string
	cues       bool

	vad     *vadProcessor
	monitor *silenceMonitor

	archiveDir string

	mu          sync.Mutex
	arch        *archive.Archiver
	monitorStop chan struct{}
}

func (a *app) send(msg tea.Msg) {
	a.programMu.Lock()
	p := a.program
	a.programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (a *app) connectCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.mgr.Connect(context.Background()); err != nil {
			return ErrLineMsg{Text: err.Error()}
		}
		return ErrLineMsg{}
	}
}

func (a *app) disconnectCmd() tea.Cmd {
	return func() tea.Msg {
		a.stopRecording()
		a.mgr.Disconnect()
		return ErrLineMsg{}
	}
}

func (a *app) startCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.startRecording(); err != nil {
			return ErrLineMsg{Text: err.Error()}
		}
		return ErrLineMsg{}
	}
}

func (a *app) stopCmd() tea.Cmd {
	return func() tea.Msg {
		a.stopRecording()
		return nil
	}
}

func (a *app) copyCmd(text, what string) tea.Cmd {
	return func() tea.Msg {
		if text == "" {
			return nil
		}
		if err := clipboard.Copy(text); err != nil {
			return ErrLineMsg{Text: "clipboard: " + err.Error()}
		}
		return CopiedMsg{What: what}
	}
}

func (a *app) startRecording() error {
	if a.vad != nil {
		a.vad.Reset()
	}
	a.monitor.Reset()

	a.mu.Lock()
	if a.archiveDir != "" {
		arch, err := archive.New(a.archiveDir)
		if err != nil {
			log.Warnf("archive disabled: %v", err)
		} else {
			a.arch = arch
		}
	}
	a.mu.Unlock()

	if err := a.ctrl.Start(); err != nil {
		a.closeArchive()
		return err
	}

	if a.cues {
		beep.PlayStart()
	}

	stop := make(chan struct{})
	a.mu.Lock()
	a.monitorStop = stop
	a.mu.Unlock()
	go a.runSilenceMonitor(stop)
	return nil
}

func (a *app) runSilenceMonitor(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hasSpeech := a.vad != nil && a.vad.HasSpeechTick()
			ev := a.monitor.Tick(hasSpeech)
			if ev == SilenceNone {
				continue
			}
			a.send(SilenceMsg{Event: ev})
			if a.cues && (ev == SilenceWarn || ev == SilenceRepeat) {
				beep.PlayError()
			}
		}
	}
}

func (a *app) stopRecording() {
	a.mu.Lock()
	if a.monitorStop != nil {
		close(a.monitorStop)
		a.monitorStop = nil
	}
	a.mu.Unlock()

	if !a.ctrl.Recording() {
		return
	}
	a.ctrl.Stop()
	if a.cues {
		beep.PlayStop()
	}
	a.closeArchive()
}

func (a *app) closeArchive() {
	a.mu.Lock()
	arch := a.arch
	a.arch = nil
	a.mu.Unlock()
	if arch == nil {
		return
	}
	if path, err := arch.Close(); err != nil {
		log.Warnf("archive write failed: %v", err)
	} else if path != "" {
		log.Info("archived: " + path)
	}
}

// archiveTap feeds the live archiver, if one is open. Registered once; the
// nil check makes it inert between recordings.
func (a *app) archiveTap(samples []float32) {
	a.mu.Lock()
	arch := a.arch
	a.mu.Unlock()
	if arch != nil {
		arch.Tap(samples)
	}
}

func (a *app) levelTap(samples []float32) {
	a.send(AudioLevelMsg{Level: audio.Level(samples)})
}

func main() {
	configFlag := flag.String("config", "", "Path to YAML config file")
	serverFlag := flag.String("server", "", "Websocket URL (overrides config)")
	httpFlag := flag.String("http", "", "HTTP base URL (overrides config)")
	tableFlag := flag.String("table", "", "Braille table, e.g. en-ueb-g2.ctb")
	langFlag := flag.String("lang", "", "Language code, e.g. en, fr")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	archiveFlag := flag.String("archive", "", "Archive session audio as FLAC into this directory")
	autoStopFlag := flag.Bool("autostop", false, "Stop recording after 30s of silence")
	translateFlag := flag.String("translate", "", "Translate the given text to braille and exit")
	backFlag := flag.String("back", "", "Back-translate the given braille to text and exit")
	tablesFlag := flag.Bool("tables", false, "List server braille tables and exit")
	logPathFlag := flag.String("logpath", "", "Log directory (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("sixdot %s\n", version)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverFlag != "" {
		cfg.Server.WSURL = *serverFlag
	}
	if *httpFlag != "" {
		cfg.Server.HTTPURL = *httpFlag
	}
	if *archiveFlag != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Dir = *archiveFlag
	}

	userPrefs, err := prefs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if *tableFlag != "" {
		userPrefs.BrailleTable = *tableFlag
	} else if cfg.Session.BrailleTable != config.Default().Session.BrailleTable {
		userPrefs.BrailleTable = cfg.Session.BrailleTable
	}
	if *langFlag != "" {
		userPrefs.Language = *langFlag
	} else if cfg.Session.Language != config.Default().Session.Language {
		userPrefs.Language = cfg.Session.Language
	}
	if *deviceFlag != "" {
		userPrefs.Device = *deviceFlag
	}

	httpClient := api.NewClient(cfg.Server.HTTPURL)

	// One-shot modes that never touch the microphone.
	if *tablesFlag {
		runListTables(httpClient)
		return
	}
	if *translateFlag != "" {
		runTranslate(httpClient, *translateFlag, userPrefs.BrailleTable)
		return
	}
	if *backFlag != "" {
		runBackTranslate(httpClient, *backFlag, userPrefs.BrailleTable)
		return
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(cfg.Server.WSURL, userPrefs.BrailleTable, userPrefs.Language)

	// Probe the server before opening the mic so broken setups fail fast
	// with a readable message instead of a reconnect loop.
	serverLine := ""
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	if h, err := httpClient.Health(probeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: server health check failed: %v\n", err)
		serverLine = "server: unreachable"
	} else if h.Status != "healthy" {
		fmt.Fprintf(os.Stderr, "Warning: server unhealthy: %s %s\n", h.Status, h.Message)
		serverLine = "server: " + h.Status
	} else {
		serverLine = fmt.Sprintf("server: healthy · liblouis %s · asr %s", h.LiblouisVersion, h.ASRStatus)
		log.Infof("server healthy: liblouis %s, asr %s (%s)", h.LiblouisVersion, h.ASRStatus, h.ASRModel)
		if err := validateTable(probeCtx, httpClient, userPrefs.BrailleTable); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	cancelProbe()

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	var selectedDevice *audio.DeviceInfo
	if *setupFlag {
		selectedDevice, err = selectDevice(audioCtx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using default\n", err)
		} else if selectedDevice != nil {
			userPrefs.Device = selectedDevice.Name
		}
	} else if userPrefs.Device != "" {
		if devices, err := audioCtx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == userPrefs.Device {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			fmt.Fprintf(os.Stderr, "Warning: device %q not found, using default\n", userPrefs.Device)
		}
	}

	if err := userPrefs.Save(); err != nil {
		log.Warnf("saving prefs: %v", err)
	}

	a := &app{
		cues:    userPrefs.FeedbackEnabled,
		monitor: newSilenceMonitor(*autoStopFlag),
	}
	if !userPrefs.FeedbackEnabled {
		beep.Disable()
	}
	if cfg.Archive.Enabled {
		a.archiveDir = cfg.Archive.Dir
	}

	a.vad, err = newVADProcessor()
	if err != nil {
		log.Warnf("local vad unavailable: %v", err)
	}

	sessionCfg := protocol.SessionConfig{
		BrailleTable: userPrefs.BrailleTable,
		Language:     userPrefs.Language,
		Task:         cfg.Session.Task,
	}

	obs := &uiObserver{send: a.send, cues: userPrefs.FeedbackEnabled}
	sink := &fanoutSink{send: a.send}
	a.mgr = stream.NewManager(cfg.Server.WSURL, stream.DialWebsocket, sink)
	a.ctrl = session.New(a.mgr, audioCtx, sessionCfg, obs)
	sink.ctrl = a.ctrl

	a.ctrl.SetDevice(selectedDevice)
	a.ctrl.AddTap(a.levelTap)
	a.ctrl.AddTap(a.archiveTap)
	if a.vad != nil {
		a.ctrl.AddTap(a.vad.Tap)
	}

	a.deviceLine = deviceLineText(selectedDevice)
	a.serverLine = serverLine

	program := newTUIProgram(a)
	a.programMu.Lock()
	a.program = program
	a.programMu.Unlock()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		program.Quit()
	}()

	if err := a.mgr.Connect(context.Background()); err != nil {
		log.Warnf("initial connect: %v", err)
	}

	if _, err := program.Run(); err != nil {
		log.Errorf("tui error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	a.stopRecording()
	a.mgr.Disconnect()
	log.SessionEnd(a.ctrl.Accumulated().Count())
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func validateTable(ctx context.Context, c *api.Client, table string) error {
	tables, err := c.Tables(ctx)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	for _, t := range tables {
		if t.Filename == table {
			return nil
		}
	}
	return fmt.Errorf("table %q not offered by server (see -tables)", table)
}

func runListTables(c *api.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	tables, err := c.Tables(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, t := range tables {
		fmt.Printf("%-24s %-6s %-4s %s\n", t.Filename, t.Language, t.Grade, t.DisplayName)
	}
}

func runTranslate(c *api.Client, text, table string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	tr, err := c.Translate(ctx, text, table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tr.Braille)
}

func runBackTranslate(c *api.Client, braille, table string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	bt, err := c.BackTranslate(ctx, braille, table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(bt.Text)
}

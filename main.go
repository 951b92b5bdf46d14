package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"pulse/audio"
	"pulse/beep"
	"pulse/config"
	"pulse/doctor"
	"pulse/hotkey"
	"pulse/live"
	"pulse/log"
	"pulse/metrics"
	"pulse/session"
	"pulse/shutdown"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	device     string
	setup      bool
	transport  string
	endpoint   string
	model      string
	voice      string
	metrics    string
	hotkey     bool
	longPress  time.Duration
	test       bool
	doctor     bool
	version    bool
	tui        bool
	gui        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "config file path (default: OS config dir)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.device, "device", "", "use the microphone whose name contains this text")
	fs.BoolVar(&o.setup, "setup", false, "select microphone device interactively")
	fs.StringVar(&o.transport, "transport", "", "live transport: genai or websocket")
	fs.StringVar(&o.endpoint, "endpoint", "", "override the live API endpoint")
	fs.StringVar(&o.model, "model", "", "live model name")
	fs.StringVar(&o.voice, "voice", "", "prebuilt voice name")
	fs.StringVar(&o.metrics, "metrics", "", "serve Prometheus metrics on this address (e.g., :9464)")
	fs.BoolVar(&o.hotkey, "hotkey", true, "enable the global mute hotkey ("+hotkey.Combo+")")
	fs.DurationVar(&o.longPress, "longpress", 350*time.Millisecond, "hold threshold for push-to-talk vs tap (e.g., 350ms)")
	fs.BoolVar(&o.test, "test", false, "test mode (headless, stdin-driven)")
	fs.BoolVar(&o.doctor, "doctor", false, "run system diagnostics and exit")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.BoolVar(&o.tui, "tui", true, "run with terminal UI")
	fs.BoolVar(&o.gui, "gui", false, "open the desktop window (needs a build with -tags gui)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// apply overlays non-empty flags onto the stored record.
func (o *options) apply(cfg *config.Config) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Transport, o.transport)
	set(&cfg.Endpoint, o.endpoint)
	set(&cfg.Model, o.model)
	set(&cfg.Voice, o.voice)
	set(&cfg.Device, o.device)
	set(&cfg.MetricsAddr, o.metrics)
	return cfg.Validate()
}

// wantGUI reports whether -gui was passed. main checks this before flags
// are parsed because the window must own the main thread.
func wantGUI(args []string) bool {
	for _, arg := range args {
		if arg == "-gui" || arg == "--gui" || arg == "-gui=true" || arg == "--gui=true" {
			return true
		}
	}
	return false
}

func liveConfig(cfg *config.Config) live.Config {
	lc := live.DefaultConfig()
	if cfg.Model != "" {
		lc.Model = cfg.Model
	}
	if cfg.Voice != "" {
		lc.Voice = cfg.Voice
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = cfg.SystemInstruction
	}
	return lc
}

func buildDialer(cfg *config.Config) live.Dialer {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return &live.WebSocketDialer{Endpoint: cfg.Endpoint}
	default:
		return &live.GeminiDialer{BaseURL: cfg.Endpoint}
	}
}

func deviceLineText(name string) string {
	if name == "" {
		name = "system default"
	}
	if audio.IsBluetooth(name) {
		name += " (BT!)"
	}
	return "mic: " + name
}

func runSetKey(path string, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pulse setkey <api-key>")
		return 2
	}
	if err := config.SetKey(path, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("API key %s saved to %s\n", config.Redacted(strings.TrimSpace(args[0])), path)
	return 0
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server error: %v", err)
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	log.Infof("metrics listening on %s", addr)
	return srv
}

func run() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	args := os.Args[1:]
	setKey := len(args) > 0 && args[0] == "setkey"
	if setKey {
		args = args[1:]
	}

	opts, err := parseFlags(flag.CommandLine, args)
	if err != nil {
		os.Exit(2)
	}

	if opts.version {
		fmt.Printf("pulse %s\n", version)
		os.Exit(0)
	}

	configPath := opts.configPath
	if configPath == "" {
		if configPath, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot locate config directory: %v\n", err)
			os.Exit(1)
		}
	}
	if setKey {
		os.Exit(runSetKey(configPath, flag.Args()))
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := opts.apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if opts.doctor {
		os.Exit(doctor.Run(doctor.Options{
			Device:           cfg.Device,
			Credential:       cfg.Credential(),
			CredentialSource: cfg.CredentialSource(),
			Dialer:           buildDialer(cfg),
			Live:             liveConfig(cfg),
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, m)
		defer srv.Close()
	}

	if opts.test {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: pulse -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(flag.Arg(0), cfg, m, opts.longPress)
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var dev *audio.DeviceInfo
	switch {
	case cfg.Device != "":
		if dev, err = audio.FindDevice(actx, cfg.Device); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case opts.setup:
		dev, err = audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionAborted) {
			os.Exit(130)
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using default device\n", err)
		}
	}
	devName := ""
	if dev != nil {
		devName = dev.Name
	}

	beep.Init()

	var sink EventSink = tuiSink{}
	switch {
	case guiApp != nil:
		sink = guiApp
	case !opts.tui:
		sink = newTextSink(os.Stdout)
	}
	events := newSessionEvents(sink)
	ctl := session.New(session.Options{
		Source:  audio.NewDeviceSource(actx, dev),
		Dialer:  buildDialer(cfg),
		Live:    liveConfig(cfg),
		Logger:  log.Logger(),
		Metrics: m,
	}, events.Callbacks())
	mute := muteControl{ctl: ctl, events: events}
	credential := cfg.Credential()

	if opts.hotkey {
		startMuteKey(hotkey.New(), opts.longPress, mute)
	}

	log.Infof("pulse %s starting, transport=%s device=%q", version, buildDialer(cfg).Name(), devName)

	if guiApp != nil {
		runGUI(ctl, mute, credential, deviceLineText(devName))
		return
	}

	if !opts.tui {
		ctx, stop := shutdown.Context(context.Background())
		defer stop()
		runHeadless(ctx, ctl, credential)
		return
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)

	model := newTUIModel(ctl, mute, func(ctx context.Context) error {
		return ctl.Connect(ctx, credential)
	}, credential != "", deviceLineText(devName))

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(model)
	tuiMu.Unlock()

	go func() {
		<-sigChan
		tuiProgram.Quit()
	}()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}
	ctl.Disconnect()
}

// startMuteKey registers hk and applies its actions to mute. A failed
// registration is logged; the TUI key still works.
func startMuteKey(hk hotkey.Hotkey, longPress time.Duration, mute hotkey.Muter) *hotkey.MuteKey {
	if err := hk.Register(); err != nil {
		log.Warnf("mute hotkey unavailable: %v", err)
		return nil
	}
	mk := hotkey.NewMuteKey(hk, longPress)
	go func() {
		var held bool
		for a := range mk.Actions() {
			log.Infof("mute key: %s", a)
			hotkey.Apply(mute, a, &held)
		}
	}()
	return mk
}

// runHeadless connects at once and prints events until the session ends
// or ctx is cancelled.
func runHeadless(ctx context.Context, ctl *session.Controller, credential string) {
	if err := ctl.Connect(ctx, credential); err != nil {
		log.Errorf("connect failed: %v", err)
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ctl.Disconnect()
			return
		case <-ticker.C:
			if ctl.State() == session.StateDisconnected {
				return
			}
		}
	}
}

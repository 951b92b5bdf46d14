package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  = zerolog.Nop()
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

const DiagnosticsFile = "diagnostics_log.txt"

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: PULSE_LOG_PATH environment variable
	if envPath := os.Getenv("PULSE_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, DiagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady = false
	diagLog = zerolog.Nop()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
}

// Logger returns the diagnostics logger for injection into components that
// take a zerolog.Logger. Before Init it is a no-op logger.
func Logger() zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return diagLog
}

func ready() (zerolog.Logger, bool) {
	logMu.Lock()
	defer logMu.Unlock()
	return diagLog, logReady
}

func Info(msg string) {
	if l, ok := ready(); ok {
		l.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if l, ok := ready(); ok {
		l.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if l, ok := ready(); ok {
		l.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if l, ok := ready(); ok {
		l.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if l, ok := ready(); ok {
		l.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if l, ok := ready(); ok {
		l.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(transport, model, device string) {
	l, ok := ready()
	if !ok {
		return
	}
	l.Info().
		Str("transport", transport).
		Str("model", model).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(userChars, modelChars int, connectedS float64) {
	l, ok := ready()
	if !ok {
		return
	}
	l.Info().
		Int("user_chars", userChars).
		Int("model_chars", modelChars).
		Float64("connected_s", connectedS).
		Msg("session_end")
}

func StateChange(from, to string) {
	l, ok := ready()
	if !ok {
		return
	}
	l.Info().Str("from", from).Str("to", to).Msg("state_change")
}

type StreamMetricsData struct {
	ConnectMs     float64
	TotalMs       float64
	AudioS        float64
	SentChunks    int
	SentKB        float64
	RecvMessages  int
	RecvAudio     int
	DecodeErrors  int
	PausedFrames  int
	TurnsComplete int
}

func StreamMetrics(m StreamMetricsData) {
	l, ok := ready()
	if !ok {
		return
	}
	l.Info().
		Float64("connect_ms", m.ConnectMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_audio", m.RecvAudio).
		Int("decode_errors", m.DecodeErrors).
		Int("paused_frames", m.PausedFrames).
		Int("turns_complete", m.TurnsComplete).
		Msg("live_stream")
}

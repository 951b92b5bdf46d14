package log

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readDiag(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, DiagnosticsFile))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("PULSE_LOG_PATH", "/tmp/pulse-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/pulse-env-log" {
		t.Errorf("got %q, want /tmp/pulse-env-log", got)
	}
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv("PULSE_LOG_PATH", "/tmp/pulse-env-log")
	got, err := ResolveDir("/tmp/flag")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/flag" {
		t.Errorf("got %q, want /tmp/flag", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("PULSE_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "pulse") {
		t.Errorf("default dir %q should contain pulse", got)
	}
}

func TestInitCreatesDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(tmp, DiagnosticsFile)); err != nil {
		t.Errorf("%s not created: %v", DiagnosticsFile, err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "transcribe_log.txt")); !os.IsNotExist(err) {
		t.Error("no transcript file may be written")
	}
}

func TestStructuredEvents(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("genai", "model-x", "fake")
	StateChange("DISCONNECTED", "CONNECTING")
	StreamMetrics(StreamMetricsData{SentChunks: 3, DecodeErrors: 1})
	SessionEnd(10, 20, 1.5)
	l := Logger()
	l.Info().Str("k", "v").Msg("injected")
	Close()

	out := readDiag(t, tmp)
	for _, want := range []string{
		"session_start", "transport=genai", "model=model-x",
		"state_change", "from=DISCONNECTED", "to=CONNECTING",
		"live_stream", "sent_chunks=3", "decode_errors=1",
		"session_end", "user_chars=10",
		"injected", "k=v",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, out)
		}
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	Info("dropped")
	Warnf("dropped %d", 1)
	l := Logger()
	l.Info().Msg("dropped")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}

func TestDefaultDirHonoursXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	got, err := getDefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "pulse", "logs"); got != want {
		t.Errorf("getDefaultDir() = %q, want %q", got, want)
	}
}

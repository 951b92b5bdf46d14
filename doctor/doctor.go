package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"pulse/audio"
	"pulse/clipboard"
	"pulse/codec"
	"pulse/hotkey"
	"pulse/live"
	"pulse/shutdown"
	"pulse/volume"
)

// Options configures a diagnostics run. Zero values fall back to the real
// system: the platform audio context, stdout and a two second listen.
type Options struct {
	Out io.Writer

	Audio  audio.Context
	Device string
	Listen time.Duration

	Credential       string
	CredentialSource string
	Dialer           live.Dialer
	Live             live.Config
	ConnectTimeout   time.Duration

	// SkipSystem skips the hotkey and clipboard checks, which touch
	// global desktop state.
	SkipSystem bool
}

type Result struct {
	Name   string
	Pass   bool
	Warn   bool
	Detail string
}

// quietLevel is the buffer-mode level below which the mic is flagged as
// possibly muted.
const quietLevel = 0.01

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	out := opts.Out

	fmt.Fprintln(out, "pulse doctor - system diagnostics")
	fmt.Fprintln(out, "=================================")

	results := Check(ctx, opts)

	fmt.Fprintln(out)
	if Passed(results) {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass && !r.Warn {
			return false
		}
	}
	return true
}

// Check runs every check, printing each as it completes.
func Check(ctx context.Context, opts Options) []Result {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	steps := []struct {
		name string
		fn   func(context.Context, Options) Result
	}{
		{"API key", checkCredential},
		{"Microphone", checkMicrophone},
		{"Live connection", checkLive},
	}
	if !opts.SkipSystem {
		steps = append(steps,
			struct {
				name string
				fn   func(context.Context, Options) Result
			}{"Mute hotkey", checkHotkey},
			struct {
				name string
				fn   func(context.Context, Options) Result
			}{"Clipboard", checkClipboard},
		)
	}

	results := make([]Result, 0, len(steps))
	for i, s := range steps {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(steps), s.name)
		r := s.fn(ctx, opts)
		r.Name = s.name
		switch {
		case r.Pass:
			fmt.Fprintf(out, "  PASS: %s\n", r.Detail)
		case r.Warn:
			fmt.Fprintf(out, "  WARN: %s\n", r.Detail)
		default:
			fmt.Fprintf(out, "  FAIL: %s\n", r.Detail)
		}
		results = append(results, r)
	}
	return results
}

func checkCredential(_ context.Context, opts Options) Result {
	if opts.Credential == "" {
		return Result{Detail: "no API key configured (run: pulse setkey <key>, or set GEMINI_API_KEY)"}
	}
	src := opts.CredentialSource
	if src == "" {
		src = "flag"
	}
	return Result{Pass: true, Detail: fmt.Sprintf("API key found (%s)", src)}
}

func checkMicrophone(ctx context.Context, opts Options) Result {
	actx := opts.Audio
	if actx == nil {
		c, err := audio.NewContext()
		if err != nil {
			return Result{Detail: fmt.Sprintf("cannot connect to audio: %v", err)}
		}
		defer c.Close()
		actx = c
	}

	dev, err := pickDevice(actx, opts.Device)
	if err != nil {
		return Result{Detail: err.Error()}
	}

	listen := opts.Listen
	if listen <= 0 {
		listen = 2 * time.Second
	}
	want := max(1, int(listen.Seconds()*codec.InputSampleRate)/codec.BlockSize)

	src := audio.NewDeviceSource(actx, dev)
	stream, err := src.Open(ctx, audio.CaptureConfig{
		SampleRate: codec.InputSampleRate,
		Channels:   codec.Channels,
		BlockSize:  codec.BlockSize,
	})
	if err != nil {
		return Result{Detail: fmt.Sprintf("cannot open %s: %v", dev.Name, err)}
	}
	defer stream.Close()

	deadline := time.NewTimer(listen + 3*time.Second)
	defer deadline.Stop()

	var frames int
	var peak float64
	for frames < want {
		select {
		case f, ok := <-stream.Frames():
			if !ok {
				return Result{Detail: fmt.Sprintf("capture on %s stopped after %d frames", dev.Name, frames)}
			}
			frames++
			peak = max(peak, volume.Buffer(f.Samples))
		case <-deadline.C:
			return Result{Detail: fmt.Sprintf("timed out on %s after %d/%d frames", dev.Name, frames, want)}
		case <-ctx.Done():
			return Result{Detail: ctx.Err().Error()}
		}
	}

	detail := fmt.Sprintf("%s: %d frames, peak level %.2f", dev.Name, frames, peak)
	if audio.IsBluetooth(dev.Name) {
		detail += " (bluetooth headsets may capture narrowband audio)"
	}
	if peak < quietLevel {
		return Result{Warn: true, Detail: detail + ", no voice detected (is the mic muted?)"}
	}
	return Result{Pass: true, Detail: detail}
}

func pickDevice(actx audio.Context, name string) (*audio.DeviceInfo, error) {
	if name != "" {
		return audio.FindDevice(actx, name)
	}
	devices, err := actx.Devices()
	if err != nil {
		return nil, fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no capture devices found")
	}
	return &devices[0], nil
}

func checkLive(ctx context.Context, opts Options) Result {
	if opts.Credential == "" {
		return Result{Detail: "skipped, no API key"}
	}
	if opts.Dialer == nil {
		return Result{Detail: "no transport configured"}
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := opts.Dialer.Dial(ctx, opts.Credential, opts.Live)
	if err != nil {
		var re *live.RemoteError
		if errors.As(err, &re) {
			return Result{Detail: fmt.Sprintf("server rejected session: %v", re)}
		}
		return Result{Detail: fmt.Sprintf("%s connect failed: %v", opts.Dialer.Name(), err)}
	}
	elapsed := time.Since(start)
	if err := conn.Close(); err != nil {
		return Result{Warn: true, Detail: fmt.Sprintf("connected in %dms but close failed: %v", elapsed.Milliseconds(), err)}
	}
	return Result{Pass: true, Detail: fmt.Sprintf("%s session opened in %dms", opts.Dialer.Name(), elapsed.Milliseconds())}
}

func checkHotkey(context.Context, Options) Result {
	msg, err := hotkey.Diagnose()
	if err != nil {
		return Result{Warn: true, Detail: fmt.Sprintf("%v (space in the TUI still toggles mute)", err)}
	}
	return Result{Pass: true, Detail: msg}
}

func checkClipboard(context.Context, Options) Result {
	msg, err := clipboard.Verify()
	if err != nil {
		return Result{Warn: true, Detail: fmt.Sprintf("%v (transcript copy unavailable)", err)}
	}
	return Result{Pass: true, Detail: msg}
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"pulse/audio"
	"pulse/beep"
	"pulse/codec"
	"pulse/config"
	"pulse/hotkey"
	"pulse/live"
	"pulse/log"
	"pulse/metrics"
	"pulse/session"
)

// testTurnEvery is how many sent chunks (about a second of audio) pass
// between scripted model turns.
const testTurnEvery = 4

// trackedContext remembers the most recent fake capture so WAIT_AUDIO_DONE
// can wait on it.
type trackedContext struct {
	*audio.FakeContext

	mu   sync.Mutex
	last *audio.FakeCapture
}

func (c *trackedContext) NewCapture(d *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	dev, err := c.FakeContext.NewCapture(d, cfg)
	if fc, ok := dev.(*audio.FakeCapture); ok {
		c.mu.Lock()
		c.last = fc
		c.mu.Unlock()
	}
	return dev, err
}

func (c *trackedContext) audioDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.AudioDone()
}

// scriptedResponder answers every testTurnEvery chunks with one full turn.
func scriptedResponder() func(sent int) []live.Message {
	reply := make([]float32, 2400)
	for i := range reply {
		reply[i] = float32(0.5 * math.Sin(2*math.Pi*300*float64(i)/codec.OutputSampleRate))
	}
	return func(sent int) []live.Message {
		if sent%testTurnEvery != 0 {
			return nil
		}
		n := sent / testTurnEvery
		return live.ScriptedTurn(fmt.Sprintf("user turn %d", n), fmt.Sprintf("model reply %d", n), reply)
	}
}

func runTestMode(wavPath string, cfg *config.Config, m *metrics.Metrics, longPress time.Duration) {
	beep.Disable()

	fake, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}
	actx := &trackedContext{FakeContext: fake}

	credential := cfg.Credential()
	if credential == "" {
		credential = "test"
	}

	events := newSessionEvents(newTextSink(os.Stdout))
	ctl := session.New(session.Options{
		Source:  audio.NewDeviceSource(actx, nil),
		Dialer:  &live.FakeDialer{Responder: scriptedResponder()},
		Live:    liveConfig(cfg),
		Logger:  log.Logger(),
		Metrics: m,
	}, events.Callbacks())

	mute := muteControl{ctl: ctl, events: events}
	hk := hotkey.NewFake()
	startMuteKey(hk, longPress, mute)

	driveTestMode(os.Stdin, ctl, mute, credential, actx, hk)
	ctl.Disconnect()
}

// testController is what the stdin driver needs from the session.
type testController interface {
	Connect(ctx context.Context, credential string) error
	Disconnect()
}

// driveTestMode executes one command per line until QUIT or EOF.
func driveTestMode(r io.Reader, ctl testController, mute hotkey.Muter, credential string, actx *trackedContext, hk *hotkey.FakeHotkey) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "CONNECT":
			ctl.Connect(context.Background(), credential)
		case cmd == "DISCONNECT":
			ctl.Disconnect()
		case cmd == "PAUSE":
			mute.SetPaused(true)
		case cmd == "RESUME":
			mute.SetPaused(false)
		case cmd == "KEYDOWN":
			hk.SimKeydown()
		case cmd == "KEYUP":
			hk.SimKeyup()
		case cmd == "WAIT_AUDIO_DONE":
			if done := actx.audioDone(); done != nil {
				<-done
			}
		case cmd == "QUIT":
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(strings.TrimSpace(cmd[6:])); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "":
		default:
			log.Warnf("test mode: unknown command %q", cmd)
		}
	}
}

package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pulse/audio"
	"pulse/codec"
	"pulse/live"
	"pulse/metrics"
	"pulse/transcript"
)

type fakeSource struct {
	openErr error
	// block makes Open wait for its context to end.
	block bool

	mu      sync.Mutex
	streams []*fakeStream
}

func (s *fakeSource) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.FrameStream, error) {
	if s.block {
		<-ctx.Done()
		return nil, errors.New("capture cancelled")
	}
	if s.openErr != nil {
		return nil, s.openErr
	}
	st := &fakeStream{frames: make(chan audio.Frame, 16), size: cfg.BlockSize}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return st, nil
}

func (s *fakeSource) last() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

type fakeStream struct {
	frames chan audio.Frame
	size   int

	mu      sync.Mutex
	seq     uint64
	stopped bool
	closed  bool
}

func (s *fakeStream) push(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	samples := make([]float32, s.size)
	for i := range samples {
		samples[i] = v
	}
	s.frames <- audio.Frame{Seq: s.seq, Samples: samples}
	s.seq++
}

func (s *fakeStream) Frames() <-chan audio.Frame { return s.frames }
func (s *fakeStream) DeviceName() string         { return "fake" }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.frames)
	}
}

func (s *fakeStream) Close() {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

func (f *fakeClock) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickers {
		select {
		case t.c <- f.now:
		default:
		}
	}
}

type fakeTicker struct{ c chan time.Time }

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               {}

type recorder struct {
	mu      sync.Mutex
	states  []State
	events  []transcript.Event
	latest  transcript.Transcript
	volumes []float64
	errs    []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStateChange: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnTranscript: func(ev transcript.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		OnTranscriptUpdate: func(t transcript.Transcript) {
			r.mu.Lock()
			r.latest = t
			r.mu.Unlock()
		},
		OnVolume: func(v float64) {
			r.mu.Lock()
			r.volumes = append(r.volumes, v)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]State, []error, []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]error(nil), r.errs...), append([]float64(nil), r.volumes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
	prev := StateDisconnected
	for _, s := range got {
		if !canTransition(prev, s) {
			t.Fatalf("illegal transition %v -> %v in %v", prev, s, got)
		}
		prev = s
	}
}

type harness struct {
	ctrl   *Controller
	rec    *recorder
	src    *fakeSource
	dialer *live.FakeDialer
	clock  *fakeClock
	m      *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:    &recorder{},
		src:    &fakeSource{},
		dialer: &live.FakeDialer{},
		clock:  newFakeClock(),
		m:      metrics.New(),
	}
	ids := 0
	h.ctrl = New(Options{
		Source:  h.src,
		Dialer:  h.dialer,
		Clock:   h.clock,
		Metrics: h.m,
		Assembler: transcript.Assembler{NewID: func() string {
			ids++
			return string(rune('a' + ids - 1))
		}},
	}, h.rec.callbacks())
	t.Cleanup(h.ctrl.Disconnect)
	return h
}

func (h *harness) connect(t *testing.T) *live.FakeConn {
	t.Helper()
	if err := h.ctrl.Connect(context.Background(), "key"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h.dialer.Last()
}

func TestConnectScenario(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)

	states, _, _ := h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateConnected)
	if fc.Credential != "key" {
		t.Errorf("credential = %q", fc.Credential)
	}
	if !fc.Config.InputTranscription || !fc.Config.OutputTranscription || fc.Config.Voice != live.DefaultVoice {
		t.Errorf("dial config = %+v", fc.Config)
	}

	fc.Push(live.Message{OutputTranscript: "hi"})
	fc.Push(live.Message{TurnComplete: true})
	waitFor(t, "turn to close", func() bool {
		last, ok := h.ctrl.Transcript().Last()
		return ok && !last.Partial
	})

	h.ctrl.Disconnect()

	items := h.ctrl.Transcript().Items()
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Sender != transcript.SenderModel || items[0].Text != "hi" || items[0].Partial {
		t.Errorf("item = %+v", items[0])
	}
	if h.ctrl.State() != StateDisconnected {
		t.Errorf("state = %v", h.ctrl.State())
	}
	states, errs, _ := h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateConnected, StateDisconnected)
	if len(errs) != 0 {
		t.Errorf("unexpected errors %v", errs)
	}
	if !fc.Closed() || !h.src.last().isClosed() {
		t.Error("transport and device must be released")
	}
}

func TestRawEventsAreReported(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)

	fc.Push(live.Message{OutputTranscript: "m", InputTranscript: "u"})
	fc.Push(live.Message{TurnComplete: true})
	waitFor(t, "events", func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return len(h.rec.events) == 4
	})

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	want := []transcript.Event{
		{Text: "m", Sender: transcript.SenderModel},
		{Text: "u", Sender: transcript.SenderUser},
		{Sender: transcript.SenderModel, Final: true},
		{Sender: transcript.SenderUser, Final: true},
	}
	for i, ev := range want {
		if h.rec.events[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, h.rec.events[i], ev)
		}
	}
	items := h.ctrl.Transcript().Items()
	if len(items) != 2 {
		t.Fatalf("merged transcript = %+v", items)
	}
	if items[0].Sender != transcript.SenderModel || items[0].Text != "m" || items[0].Partial {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Sender != transcript.SenderUser || items[1].Text != "u" || items[1].Partial {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestTurnCompleteClosesUserAfterModel(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)

	fc.Push(live.Message{InputTranscript: "hello"})
	fc.Push(live.Message{OutputTranscript: "hi there"})
	fc.Push(live.Message{TurnComplete: true})
	fc.Push(live.Message{InputTranscript: "again"})
	waitFor(t, "next turn", func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return len(h.rec.events) == 5
	})

	items := h.ctrl.Transcript().Items()
	if len(items) != 3 {
		t.Fatalf("merged transcript = %+v", items)
	}
	if items[0].Text != "hello" || items[0].Partial {
		t.Errorf("user turn not closed: %+v", items[0])
	}
	if items[1].Text != "hi there" || items[1].Partial {
		t.Errorf("model turn not closed: %+v", items[1])
	}
	if items[2].Sender != transcript.SenderUser || items[2].Text != "again" || !items[2].Partial {
		t.Errorf("items[2] = %+v", items[2])
	}
}

func TestMissingCredential(t *testing.T) {
	h := newHarness(t)
	err := h.ctrl.Connect(context.Background(), "  ")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("err %T is not a ConfigError", err)
	}
	states, errs, _ := h.rec.snapshot()
	if len(states) != 0 {
		t.Errorf("states = %v, want none", states)
	}
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one", errs)
	}
	if h.src.last() != nil || h.dialer.Dials() != 0 {
		t.Error("no resource may be touched")
	}
}

func TestDeviceErrorAbortsConnect(t *testing.T) {
	h := newHarness(t)
	h.src.openErr = errors.New("permission denied")

	err := h.ctrl.Connect(context.Background(), "key")
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	states, errs, _ := h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateError, StateDisconnected)
	if len(errs) != 1 || !errors.As(errs[0], &de) {
		t.Errorf("errors = %v", errs)
	}
	if h.dialer.Dials() != 0 {
		t.Error("transport must not be dialed after a device failure")
	}
}

func TestDialErrorReleasesDevice(t *testing.T) {
	h := newHarness(t)
	h.dialer.DialErr = errors.New("refused")

	err := h.ctrl.Connect(context.Background(), "key")
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("err = %v, want dial TransportError", err)
	}
	if h.ctrl.State() != StateDisconnected {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if !h.src.last().isClosed() {
		t.Error("device not released")
	}
	states, _, _ := h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateError, StateDisconnected)
	if got := testutil.ToFloat64(h.m.Connects.WithLabelValues("transport")); got != 1 {
		t.Errorf("transport connect failures = %v", got)
	}
}

func TestConnectWhileActive(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	if err := h.ctrl.Connect(context.Background(), "key"); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("err = %v, want ErrAlreadyActive", err)
	}
	if h.dialer.Dials() != 1 {
		t.Errorf("dials = %d", h.dialer.Dials())
	}
}

func TestPauseSendsSilence(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	st := h.src.last()

	h.ctrl.SetPaused(true)
	if !h.ctrl.Paused() {
		t.Fatal("Paused() = false")
	}
	_, _, vols := h.rec.snapshot()
	if len(vols) != 1 || vols[0] != 0 {
		t.Fatalf("volumes after pause = %v, want [0]", vols)
	}

	st.push(0.8)
	waitFor(t, "paused chunk", func() bool { return len(fc.Sent()) == 1 })
	chunk := fc.Sent()[0]
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mime = %q", chunk.MIMEType)
	}
	buf, err := codec.Decode(chunk.Data, codec.InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != codec.BlockSize {
		t.Fatalf("len = %d", len(buf.Samples))
	}
	for i, s := range buf.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v while paused", i, s)
		}
	}

	// Inbound audio and spectrum ticks stay silent while paused.
	loud := codec.EncodeRate([]float32{0.9, -0.9}, codec.OutputSampleRate)
	fc.Push(live.Message{Audio: loud.Data, OutputTranscript: "x"})
	waitFor(t, "transcript", func() bool { return h.ctrl.Transcript().Len() == 1 })
	h.clock.Tick()
	time.Sleep(20 * time.Millisecond)
	if _, _, vols := h.rec.snapshot(); len(vols) != 1 {
		t.Errorf("volumes while paused = %v", vols)
	}

	h.ctrl.SetPaused(false)
	st.push(0.5)
	waitFor(t, "live chunk", func() bool { return len(fc.Sent()) == 2 })
	buf, _ = codec.Decode(fc.Sent()[1].Data, codec.InputSampleRate)
	if math.Abs(float64(buf.Samples[0])-0.5) > 1.0/32768 {
		t.Errorf("sample after resume = %v", buf.Samples[0])
	}
	if h.ctrl.State() != StateConnected {
		t.Error("pausing must not touch the connection")
	}
	if got := testutil.ToFloat64(h.m.PausedFrames); got != 1 {
		t.Errorf("paused frames = %v", got)
	}
}

func TestInboundAudioVolume(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)

	chunk := codec.EncodeRate([]float32{0.1, -0.1, 0.1, -0.1}, codec.OutputSampleRate)
	fc.Push(live.Message{Audio: chunk.Data})
	waitFor(t, "volume", func() bool {
		_, _, v := h.rec.snapshot()
		return len(v) == 1
	})
	_, _, vols := h.rec.snapshot()
	if math.Abs(vols[0]-0.3) > 1e-3 {
		t.Errorf("volume = %v, want ~0.3", vols[0])
	}
}

func TestDecodeErrorKeepsSession(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)

	fc.Push(live.Message{Audio: "not base64!"})
	fc.Push(live.Message{Audio: "AA=="}) // one byte
	fc.Push(live.Message{InputTranscript: "still here"})
	waitFor(t, "transcript", func() bool { return h.ctrl.Transcript().Len() == 1 })

	if h.ctrl.State() != StateConnected {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if _, errs, _ := h.rec.snapshot(); len(errs) != 0 {
		t.Errorf("decode errors must not reach OnError: %v", errs)
	}
	if got := testutil.ToFloat64(h.m.DecodeErrors); got != 2 {
		t.Errorf("decode errors = %v", got)
	}
}

func TestTransportErrorDisconnects(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		op   string
	}{
		{"recv", errors.New("connection reset"), "recv"},
		{"remote", &live.RemoteError{Code: 1011, Message: "internal"}, "remote"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			fc := h.connect(t)
			fc.Push(live.Message{InputTranscript: "partial"})
			fc.Fail(tt.err)

			waitFor(t, "error", func() bool {
				_, errs, _ := h.rec.snapshot()
				return len(errs) == 1
			})
			_, errs, _ := h.rec.snapshot()
			var te *TransportError
			if !errors.As(errs[0], &te) || te.Op != tt.op {
				t.Errorf("error = %v, want %s TransportError", errs[0], tt.op)
			}
			if h.ctrl.State() != StateDisconnected {
				t.Errorf("state = %v", h.ctrl.State())
			}
			if !fc.Closed() || !h.src.last().isClosed() {
				t.Error("resources not released")
			}
			if h.ctrl.Transcript().Len() != 1 {
				t.Error("transcript must survive a transport error")
			}
		})
	}
}

func TestSendErrorDisconnects(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	fc.FailSends(errors.New("broken pipe"))
	h.src.last().push(0.1)

	waitFor(t, "error", func() bool {
		_, errs, _ := h.rec.snapshot()
		return len(errs) == 1
	})
	_, errs, _ := h.rec.snapshot()
	var te *TransportError
	if !errors.As(errs[0], &te) || te.Op != "send" {
		t.Errorf("error = %v", errs[0])
	}
	waitFor(t, "disconnect", func() bool { return h.ctrl.State() == StateDisconnected })
}

func TestRemoteCloseDisconnectsQuietly(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	fc.CloseRemote()

	waitFor(t, "disconnect", func() bool { return h.ctrl.State() == StateDisconnected })
	time.Sleep(10 * time.Millisecond)
	if _, errs, _ := h.rec.snapshot(); len(errs) != 0 {
		t.Errorf("clean close reported errors: %v", errs)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Disconnect()
	h.ctrl.Disconnect()
	if h.ctrl.State() != StateDisconnected {
		t.Errorf("state = %v", h.ctrl.State())
	}
	states, errs, _ := h.rec.snapshot()
	if len(states) != 0 || len(errs) != 0 {
		t.Errorf("states %v errors %v, want none", states, errs)
	}

	h.connect(t)
	h.ctrl.Disconnect()
	h.ctrl.Disconnect()
	states, errs, _ = h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateConnected, StateDisconnected)
	if len(errs) != 0 {
		t.Errorf("errors = %v", errs)
	}
}

func TestNoVolumeAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	st := h.src.last()

	st.push(0.5)
	waitFor(t, "frame sent", func() bool { return len(h.dialer.Last().Sent()) == 1 })
	// The ticker is created on the volume goroutine; keep ticking until
	// it is there to receive.
	waitFor(t, "spectrum volume", func() bool {
		h.clock.Tick()
		_, _, v := h.rec.snapshot()
		return len(v) > 0
	})

	h.ctrl.Disconnect()
	_, _, before := h.rec.snapshot()
	h.clock.Tick()
	time.Sleep(20 * time.Millisecond)
	if _, _, after := h.rec.snapshot(); len(after) != len(before) {
		t.Errorf("volume callback after Disconnect: %v", after[len(before):])
	}
}

func TestDisconnectAbortsConnecting(t *testing.T) {
	h := newHarness(t)
	h.dialer.DialDelay = 10 * time.Second

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Connect(context.Background(), "key") }()
	waitFor(t, "connecting", func() bool { return h.ctrl.State() == StateConnecting })

	h.ctrl.Disconnect()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("aborted Connect returned nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	if h.ctrl.State() != StateDisconnected {
		t.Errorf("state = %v", h.ctrl.State())
	}
	states, errs, _ := h.rec.snapshot()
	assertStates(t, states, StateConnecting, StateError, StateDisconnected)
	if len(errs) != 0 {
		t.Errorf("user abort reported errors: %v", errs)
	}
	if !h.src.last().isClosed() {
		t.Error("device not released after abort")
	}
}

func TestCallerCancelAbortsConnect(t *testing.T) {
	for _, tt := range []struct {
		name  string
		setup func(h *harness)
	}{
		{"while opening the device", func(h *harness) { h.src.block = true }},
		{"while dialing", func(h *harness) { h.dialer.DialDelay = 10 * time.Second }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- h.ctrl.Connect(ctx, "key") }()
			waitFor(t, "connecting", func() bool { return h.ctrl.State() == StateConnecting })
			cancel()

			var err error
			select {
			case err = <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Connect did not return after cancel")
			}
			if !errors.Is(err, context.Canceled) {
				t.Errorf("err = %v, want context.Canceled", err)
			}
			var de *DeviceError
			if errors.As(err, &de) {
				t.Errorf("cancel classified as device error: %v", err)
			}
			states, errs, _ := h.rec.snapshot()
			assertStates(t, states, StateConnecting, StateError, StateDisconnected)
			if len(errs) != 0 {
				t.Errorf("cancelled connect reported errors: %v", errs)
			}
			if st := h.src.last(); st != nil && !st.isClosed() {
				t.Error("device not released after cancel")
			}
		})
	}
}

func TestResumeForgetsPausedSpectrum(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	st := h.src.last()

	st.push(0.8)
	waitFor(t, "frame sent", func() bool { return len(fc.Sent()) == 1 })
	waitFor(t, "loud spectrum", func() bool {
		h.clock.Tick()
		_, _, v := h.rec.snapshot()
		return len(v) > 0 && v[len(v)-1] > 0
	})
	time.Sleep(20 * time.Millisecond)

	h.ctrl.SetPaused(true)
	h.ctrl.SetPaused(false)
	_, _, before := h.rec.snapshot()
	waitFor(t, "spectrum after resume", func() bool {
		h.clock.Tick()
		_, _, v := h.rec.snapshot()
		return len(v) > len(before)
	})
	_, _, after := h.rec.snapshot()
	if v := after[len(before)]; v != 0 {
		t.Errorf("first volume after resume = %v, want 0", v)
	}
}

func TestTranscriptSurvivesReconnect(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	fc.Push(live.Message{InputTranscript: "one"})
	waitFor(t, "item", func() bool { return h.ctrl.Transcript().Len() == 1 })
	h.ctrl.Disconnect()

	fc = h.connect(t)
	fc.Push(live.Message{OutputTranscript: "two"})
	waitFor(t, "second item", func() bool { return h.ctrl.Transcript().Len() == 2 })

	h.ctrl.ClearTranscript()
	if h.ctrl.Transcript().Len() != 0 {
		t.Error("ClearTranscript left items")
	}
	if h.rec.latest.Len() != 0 {
		t.Error("clear not reported to OnTranscriptUpdate")
	}
}

func TestStatsTrackConnectedTime(t *testing.T) {
	h := newHarness(t)
	fc := h.connect(t)
	fc.Push(live.Message{InputTranscript: "hello"})
	fc.Push(live.Message{OutputTranscript: "hi"})
	waitFor(t, "items", func() bool { return h.ctrl.Transcript().Len() == 2 })

	h.clock.Advance(3 * time.Second)
	st := h.ctrl.Stats()
	if st.UserChars != 5 || st.ModelChars != 2 {
		t.Errorf("chars = %d/%d", st.UserChars, st.ModelChars)
	}
	if st.ConnectedS != 3 {
		t.Errorf("connected = %v", st.ConnectedS)
	}

	h.ctrl.Disconnect()
	h.clock.Advance(time.Minute)
	if got := h.ctrl.Stats().ConnectedS; got != 3 {
		t.Errorf("connected after disconnect = %v, want 3", got)
	}
}

func TestTransitionTable(t *testing.T) {
	all := []State{StateDisconnected, StateConnecting, StateConnected, StateError}
	legal := map[[2]State]bool{
		{StateDisconnected, StateConnecting}: true,
		{StateConnecting, StateConnected}:    true,
		{StateConnecting, StateError}:        true,
		{StateConnected, StateDisconnected}:  true,
		{StateError, StateDisconnected}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := canTransition(from, to); got != legal[[2]State{from, to}] {
				t.Errorf("canTransition(%v, %v) = %v", from, to, got)
			}
		}
	}
	if StateConnected.String() != "CONNECTED" || State(9).String() != "UNKNOWN" {
		t.Error("State.String")
	}
}

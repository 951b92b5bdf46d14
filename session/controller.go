// Package session runs one live conversation: microphone frames are
// encoded and streamed out, inbound audio drives the volume meter and
// transcription fragments are merged into a transcript.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"pulse/audio"
	"pulse/codec"
	"pulse/live"
	"pulse/log"
	"pulse/metrics"
	"pulse/transcript"
	"pulse/volume"
)

const DefaultVolumeInterval = 16 * time.Millisecond

// Callbacks are invoked one at a time, never concurrently. They must not
// block and must not call back into the Controller synchronously.
type Callbacks struct {
	OnStateChange      func(State)
	OnTranscript       func(transcript.Event)
	OnTranscriptUpdate func(transcript.Transcript)
	OnVolume           func(float64)
	OnError            func(error)
}

type Options struct {
	Source audio.FrameSource
	Dialer live.Dialer
	Clock  Clock
	Live   live.Config
	// VolumeInterval is the cadence of input spectrum sampling.
	VolumeInterval time.Duration
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	Assembler      transcript.Assembler
}

type Controller struct {
	opts Options
	cb   Callbacks
	log  zerolog.Logger

	// cbMu serializes state transitions and every callback delivery.
	// Lock order: cbMu before mu.
	cbMu sync.Mutex
	gen  atomic.Uint64

	mu          sync.Mutex
	state       State
	active      *activeSession
	transcript  transcript.Transcript
	connectedAt time.Time
	lastSession time.Duration
	abort       context.CancelFunc
	pending     chan struct{}

	paused  atomic.Bool
	aborted atomic.Bool
}

func New(opts Options, cb Callbacks) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.VolumeInterval <= 0 {
		opts.VolumeInterval = DefaultVolumeInterval
	}
	if opts.Live == (live.Config{}) {
		opts.Live = live.DefaultConfig()
	}
	if opts.Live.InputRate == 0 {
		opts.Live.InputRate = codec.InputSampleRate
	}
	if opts.Live.OutputRate == 0 {
		opts.Live.OutputRate = codec.OutputSampleRate
	}
	if opts.Assembler.Now == nil {
		opts.Assembler.Now = opts.Clock.Now
	}
	return &Controller{
		opts: opts,
		cb:   cb,
		log:  opts.Logger.With().Str("component", "session").Logger(),
	}
}

type activeSession struct {
	gen      uint64
	stream   audio.FrameStream
	conn     live.Conn
	analyser *volume.Analyser
	started  time.Time
	connect  time.Duration

	cancel  context.CancelFunc
	volDone chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	down    chan struct{}

	sentChunks   atomic.Int64
	sentBytes    atomic.Int64
	pausedFrames atomic.Int64
	recvMessages atomic.Int64
	recvAudio    atomic.Int64
	decodeErrors atomic.Int64
	turns        atomic.Int64
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Paused() bool { return c.paused.Load() }

func (c *Controller) Transcript() transcript.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

func (c *Controller) Stats() transcript.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.lastSession
	if c.state == StateConnected {
		elapsed = c.opts.Clock.Now().Sub(c.connectedAt)
	}
	return transcript.Stats(c.transcript, elapsed)
}

// ClearTranscript drops all items. It is the only way the transcript is
// ever reset; disconnecting keeps it.
func (c *Controller) ClearTranscript() {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.mu.Lock()
	c.transcript = transcript.Transcript{}
	t := c.transcript
	c.mu.Unlock()
	if c.cb.OnTranscriptUpdate != nil {
		c.cb.OnTranscriptUpdate(t)
	}
}

// transitionLocked moves the state machine; the caller holds cbMu.
// Illegal transitions are refused and logged.
func (c *Controller) transitionLocked(to State) bool {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return false
	}
	if !canTransition(from, to) {
		c.mu.Unlock()
		c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("illegal state transition refused")
		return false
	}
	c.state = to
	now := c.opts.Clock.Now()
	switch {
	case to == StateConnected:
		c.connectedAt = now
		c.lastSession = 0
	case from == StateConnected:
		c.lastSession = now.Sub(c.connectedAt)
	}
	c.mu.Unlock()

	log.StateChange(from.String(), to.String())
	c.opts.Metrics.SetState(to.String())
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(to)
	}
	return true
}

func (c *Controller) transition(to State) bool {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.transitionLocked(to)
}

func (c *Controller) emitError(err error) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// emitVolume drops the value if gen is no longer the current session, so
// nothing reaches OnVolume after Disconnect returns.
func (c *Controller) emitVolume(gen uint64, v float64) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.gen.Load() != gen {
		return
	}
	c.opts.Metrics.SetVolume(v)
	if c.cb.OnVolume != nil {
		c.cb.OnVolume(v)
	}
}

func (c *Controller) Connect(ctx context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		c.opts.Metrics.RecordConnect("config", 0)
		c.emitError(ErrMissingCredential)
		return ErrMissingCredential
	}

	c.cbMu.Lock()
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		c.cbMu.Unlock()
		return ErrAlreadyActive
	}
	prev := c.active
	connCtx, abort := context.WithCancel(ctx)
	pending := make(chan struct{})
	c.abort, c.pending = abort, pending
	c.mu.Unlock()
	c.aborted.Store(false)
	c.transitionLocked(StateConnecting)
	c.cbMu.Unlock()

	defer func() {
		c.mu.Lock()
		c.abort, c.pending = nil, nil
		c.mu.Unlock()
		abort()
		close(pending)
	}()

	// A previous session may still be releasing the device.
	if prev != nil {
		<-prev.down
	}

	start := c.opts.Clock.Now()
	stream, err := c.opts.Source.Open(connCtx, audio.CaptureConfig{
		SampleRate: uint32(c.opts.Live.InputRate),
		Channels:   codec.Channels,
		BlockSize:  codec.BlockSize,
	})
	if err != nil {
		if connCtx.Err() != nil {
			return c.abortConnect(connCtx.Err())
		}
		return c.failConnect("device", &DeviceError{Err: err})
	}

	conn, err := c.opts.Dialer.Dial(connCtx, credential, c.opts.Live)
	if err == nil && connCtx.Err() != nil {
		conn.Close()
		err = connCtx.Err()
	}
	if err != nil {
		stream.Close()
		if connCtx.Err() != nil {
			return c.abortConnect(connCtx.Err())
		}
		return c.failConnect("transport", &TransportError{Op: "dial", Err: err})
	}

	s := &activeSession{
		stream:   stream,
		conn:     conn,
		analyser: volume.NewAnalyser(),
		started:  c.opts.Clock.Now(),
		volDone:  make(chan struct{}),
		down:     make(chan struct{}),
	}
	s.connect = s.started.Sub(start)
	var sessCtx context.Context
	sessCtx, s.cancel = context.WithCancel(context.Background())

	c.cbMu.Lock()
	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
	s.gen = c.gen.Add(1)
	c.paused.Store(false)
	c.transitionLocked(StateConnected)
	s.wg.Add(2)
	go c.pump(s)
	go c.receive(s)
	go c.volumeLoop(sessCtx, s)
	c.cbMu.Unlock()

	c.opts.Metrics.RecordConnect("ok", s.connect)
	log.SessionStart(c.opts.Dialer.Name(), c.opts.Live.Model, stream.DeviceName())
	c.log.Info().Dur("connect", s.connect).Str("device", stream.DeviceName()).Msg("connected")
	return nil
}

// abortConnect ends a connect cancelled by Disconnect or by the caller's
// context. err is returned as is and never reaches OnError.
func (c *Controller) abortConnect(err error) error {
	c.aborted.Store(true)
	return c.failConnect("aborted", err)
}

// failConnect runs the ERROR path. An abort requested by Disconnect is
// not reported through OnError.
func (c *Controller) failConnect(kind string, err error) error {
	c.transition(StateError)
	c.transition(StateDisconnected)
	c.opts.Metrics.RecordConnect(kind, 0)
	if te, ok := err.(*TransportError); ok {
		c.opts.Metrics.RecordTransportError(te.Op)
	}
	if c.aborted.Load() {
		c.log.Info().Err(err).Msg("connect aborted")
		return err
	}
	c.log.Error().Err(err).Msg("connect failed")
	c.emitError(err)
	return err
}

// SetPaused replaces outgoing audio with silence while p is true. The
// connection and the transcript are left alone.
func (c *Controller) SetPaused(p bool) {
	if c.paused.Swap(p) == p {
		return
	}
	c.mu.Lock()
	s := c.active
	connected := c.state == StateConnected
	c.mu.Unlock()
	if s == nil {
		return
	}
	if !p {
		// Frames captured before the pause no longer describe the mic.
		s.analyser.Reset()
		return
	}
	if connected {
		c.emitVolume(s.gen, 0)
	}
}

// Disconnect tears down the current session, or aborts one that is still
// connecting. It is safe to call at any time and any number of times.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	abort, pending := c.abort, c.pending
	c.mu.Unlock()
	if abort != nil {
		c.aborted.Store(true)
		abort()
		<-pending
	}
	c.shutdown(nil)
}

// shutdown ends expect, or whatever is active when expect is nil. It
// reports whether it acted.
func (c *Controller) shutdown(expect *activeSession) bool {
	c.cbMu.Lock()
	c.mu.Lock()
	s := c.active
	if expect != nil && (s != expect || c.gen.Load() != expect.gen) {
		c.mu.Unlock()
		c.cbMu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.gen.Add(1)
	c.transitionLocked(StateDisconnected)
	c.cbMu.Unlock()

	if s != nil {
		c.teardown(s)
		c.mu.Lock()
		if c.active == s {
			c.active = nil
		}
		c.mu.Unlock()
	}
	return true
}

// teardown stops producing frames before closing the transport and
// releases the device last.
func (c *Controller) teardown(s *activeSession) {
	s.once.Do(func() {
		s.cancel()
		<-s.volDone
		s.stream.Stop()
		s.conn.Close()
		s.wg.Wait()
		s.stream.Close()

		total := c.opts.Clock.Now().Sub(s.started)
		c.opts.Metrics.RecordSessionEnd(total)
		log.StreamMetrics(log.StreamMetricsData{
			ConnectMs:     float64(s.connect.Milliseconds()),
			TotalMs:       float64(total.Milliseconds()),
			AudioS:        float64(s.sentChunks.Load()*codec.BlockSize) / float64(c.opts.Live.InputRate),
			SentChunks:    int(s.sentChunks.Load()),
			SentKB:        float64(s.sentBytes.Load()) / 1024,
			RecvMessages:  int(s.recvMessages.Load()),
			RecvAudio:     int(s.recvAudio.Load()),
			DecodeErrors:  int(s.decodeErrors.Load()),
			PausedFrames:  int(s.pausedFrames.Load()),
			TurnsComplete: int(s.turns.Load()),
		})
		st := c.Stats()
		log.SessionEnd(st.UserChars, st.ModelChars, total.Seconds())
		c.log.Info().Dur("duration", total).Msg("disconnected")
		close(s.down)
	})
	<-s.down
}

// endSession handles a transport failure or remote close seen by the pump
// or the receiver. It runs on its own goroutine because teardown waits for
// both of them.
func (c *Controller) endSession(s *activeSession, err error) {
	if !c.shutdown(s) {
		return
	}
	if err == nil {
		c.log.Info().Msg("remote closed session")
		return
	}
	var te *TransportError
	if errors.As(err, &te) {
		c.opts.Metrics.RecordTransportError(te.Op)
	}
	c.log.Error().Err(err).Msg("session ended")
	c.emitError(err)
}

func (c *Controller) pump(s *activeSession) {
	defer s.wg.Done()
	for frame := range s.stream.Frames() {
		samples := frame.Samples
		paused := c.paused.Load()
		if paused {
			samples = codec.Silence(len(samples))
			s.pausedFrames.Add(1)
		} else {
			s.analyser.Write(samples)
		}
		chunk := codec.Encode(samples)
		if err := s.conn.Send(chunk); err != nil {
			if c.gen.Load() != s.gen {
				return
			}
			go c.endSession(s, &TransportError{Op: "send", Err: err})
			return
		}
		s.sentChunks.Add(1)
		s.sentBytes.Add(int64(len(chunk.Data)))
		c.opts.Metrics.RecordChunkSent(len(chunk.Data), paused)
	}
}

func (c *Controller) receive(s *activeSession) {
	defer s.wg.Done()
	for {
		msg, err := s.conn.Recv()
		if err != nil {
			if c.gen.Load() != s.gen {
				return
			}
			if errors.Is(err, live.ErrClosed) {
				go c.endSession(s, nil)
				return
			}
			op := "recv"
			var re *live.RemoteError
			if errors.As(err, &re) {
				op = "remote"
			}
			go c.endSession(s, &TransportError{Op: op, Err: err})
			return
		}
		c.handleMessage(s, msg)
	}
}

func (c *Controller) handleMessage(s *activeSession, msg live.Message) {
	s.recvMessages.Add(1)

	if msg.Audio != "" {
		s.recvAudio.Add(1)
		c.opts.Metrics.RecordMessage("audio")
		if !c.paused.Load() {
			buf, err := codec.Decode(msg.Audio, c.opts.Live.OutputRate)
			if err != nil {
				s.decodeErrors.Add(1)
				c.opts.Metrics.RecordDecodeError()
				c.log.Warn().Err(err).Msg("dropping undecodable audio")
			} else {
				c.emitVolume(s.gen, volume.Buffer(buf.Samples))
			}
		}
	}
	if msg.OutputTranscript != "" {
		c.opts.Metrics.RecordMessage("output_transcription")
		c.apply(s, transcript.Event{Text: msg.OutputTranscript, Sender: transcript.SenderModel})
	}
	if msg.InputTranscript != "" {
		c.opts.Metrics.RecordMessage("input_transcription")
		c.apply(s, transcript.Event{Text: msg.InputTranscript, Sender: transcript.SenderUser})
	}
	if msg.Interrupted {
		c.opts.Metrics.RecordMessage("interrupted")
		c.log.Debug().Msg("model interrupted")
	}
	if msg.TurnComplete {
		s.turns.Add(1)
		c.opts.Metrics.RecordMessage("turn_complete")
		c.apply(s, transcript.Event{Sender: transcript.SenderModel, Final: true})
		c.apply(s, transcript.Event{Sender: transcript.SenderUser, Final: true})
	}
}

func (c *Controller) apply(s *activeSession, ev transcript.Event) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.gen.Load() != s.gen {
		return
	}
	c.mu.Lock()
	c.transcript = c.opts.Assembler.Apply(c.transcript, ev)
	t := c.transcript
	c.mu.Unlock()
	if c.cb.OnTranscript != nil {
		c.cb.OnTranscript(ev)
	}
	if c.cb.OnTranscriptUpdate != nil {
		c.cb.OnTranscriptUpdate(t)
	}
}

// volumeLoop samples the input spectrum once per tick. Paused ticks are
// skipped entirely; SetPaused already reported 0.
func (c *Controller) volumeLoop(ctx context.Context, s *activeSession) {
	defer close(s.volDone)
	ticker := c.opts.Clock.NewTicker(c.opts.VolumeInterval)
	defer ticker.Stop()
	bins := make([]uint8, volume.FFTSize/2)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		if c.paused.Load() {
			continue
		}
		n := s.analyser.ByteFrequencyData(bins)
		c.emitVolume(s.gen, volume.Spectrum(bins[:n]))
	}
}

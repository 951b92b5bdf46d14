package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"pulse/beep"
	"pulse/session"
	"pulse/transcript"
)

// EventSink abstracts the display layer so both the Bubble Tea TUI and the
// headless modes receive the same session events.
type EventSink interface {
	StateChange(s session.State)
	Volume(level float64)
	TranscriptUpdate(t transcript.Transcript)
	Error(err error)
	Muted(muted bool)
	SilenceHint(show bool)
}

// sessionEvents fans controller callbacks out to the sink, the chimes and
// the silence monitor.
type sessionEvents struct {
	sink EventSink
	now  func() time.Time

	mu      sync.Mutex
	silence *silenceMonitor
	state   session.State
	muted   bool
}

func newSessionEvents(sink EventSink) *sessionEvents {
	return &sessionEvents{sink: sink, now: time.Now, silence: newSilenceMonitor()}
}

func (e *sessionEvents) Callbacks() session.Callbacks {
	return session.Callbacks{
		OnStateChange:      e.onState,
		OnTranscriptUpdate: e.sink.TranscriptUpdate,
		OnVolume:           e.onVolume,
		OnError:            e.onError,
	}
}

func (e *sessionEvents) onState(s session.State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	if s != session.StateConnected {
		e.resetSilenceLocked()
	}
	if s == session.StateConnected {
		e.muted = false
	}
	e.mu.Unlock()

	switch {
	case s == session.StateConnected:
		beep.PlayConnected()
	case s == session.StateDisconnected && prev == session.StateConnected:
		beep.PlayDisconnected()
	}
	e.sink.StateChange(s)
	if s == session.StateConnected {
		e.sink.Muted(false)
	}
}

func (e *sessionEvents) onVolume(v float64) {
	e.sink.Volume(v)

	e.mu.Lock()
	var ev SilenceEvent
	if e.state == session.StateConnected && !e.muted {
		ev = e.silence.Observe(v, e.now())
	}
	e.mu.Unlock()

	switch ev {
	case SilenceWarn:
		e.sink.SilenceHint(true)
	case SilenceWarnClear:
		e.sink.SilenceHint(false)
	}
}

func (e *sessionEvents) onError(err error) {
	if !errors.Is(err, session.ErrMissingCredential) {
		beep.PlayError()
	}
	e.sink.Error(err)
}

// resetSilenceLocked clears the monitor and hides any showing hint.
func (e *sessionEvents) resetSilenceLocked() {
	if e.silence.Warned() {
		e.sink.SilenceHint(false)
	}
	e.silence.Reset()
}

func (e *sessionEvents) mutedChanged(m bool) {
	e.mu.Lock()
	changed := e.muted != m
	e.muted = m
	if changed {
		e.resetSilenceLocked()
	}
	e.mu.Unlock()
	if changed {
		e.sink.Muted(m)
	}
}

// controller is the part of session.Controller the front ends drive.
type controller interface {
	State() session.State
	Paused() bool
	SetPaused(bool)
	Disconnect()
	Stats() transcript.SessionStats
	Transcript() transcript.Transcript
	ClearTranscript()
}

// muteControl routes every mute change through the controller and keeps
// the display and silence monitor in step. It satisfies hotkey.Muter.
type muteControl struct {
	ctl    controller
	events *sessionEvents
}

func (m muteControl) Paused() bool { return m.ctl.Paused() }

func (m muteControl) SetPaused(p bool) {
	if m.ctl.State() != session.StateConnected {
		return
	}
	m.ctl.SetPaused(p)
	m.events.mutedChanged(p)
}

// textSink prints session events as lines. It drives the headless and
// test modes.
type textSink struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
}

func newTextSink(w io.Writer) *textSink {
	return &textSink{w: w, printed: make(map[string]bool)}
}

func (s *textSink) line(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *textSink) StateChange(st session.State) { s.line("state %s", st) }
func (s *textSink) Volume(float64)               {}
func (s *textSink) Error(err error)              { s.line("error %v", err) }
func (s *textSink) Muted(m bool)                 { s.line("muted %t", m) }

func (s *textSink) SilenceHint(show bool) {
	if show {
		s.line("hint no voice detected")
	} else {
		s.line("hint cleared")
	}
}

// TranscriptUpdate prints each item once, when it and everything before
// it are final, so lines keep conversation order.
func (s *textSink) TranscriptUpdate(t transcript.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range t.Items() {
		if it.Partial {
			break
		}
		if s.printed[it.ID] {
			continue
		}
		s.printed[it.ID] = true
		fmt.Fprintf(s.w, "%s: %s\n", it.Sender, it.Text)
	}
}

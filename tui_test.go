package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pulse/session"
	"pulse/transcript"
)

type stubController struct {
	mu          sync.Mutex
	state       session.State
	paused      bool
	disconnects int
	cleared     int
	t           transcript.Transcript
}

func (s *stubController) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
func (s *stubController) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
func (s *stubController) SetPaused(p bool) {
	s.mu.Lock()
	s.paused = p
	s.mu.Unlock()
}
func (s *stubController) Disconnect() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
}
func (s *stubController) Stats() transcript.SessionStats {
	return transcript.Stats(s.Transcript(), 0)
}
func (s *stubController) Transcript() transcript.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}
func (s *stubController) ClearTranscript() {
	s.mu.Lock()
	s.cleared++
	s.t = transcript.Transcript{}
	s.mu.Unlock()
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(ctl *stubController, connects *int) tuiModel {
	events := newSessionEvents(newTextSink(&strings.Builder{}))
	m := newTUIModel(ctl, muteControl{ctl: ctl, events: events}, func(context.Context) error {
		*connects++
		return nil
	}, true, "mic: test")
	m.width, m.height = 120, 40
	return m
}

func update(t *testing.T, m tuiModel, msg tea.Msg) (tuiModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(tuiModel), cmd
}

func TestTUIEnterTogglesConnection(t *testing.T) {
	ctl := &stubController{}
	var connects int
	m := newTestModel(ctl, &connects)

	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("expected connect command")
	}
	cmd()
	if connects != 1 {
		t.Fatalf("connects = %d", connects)
	}

	m, _ = update(t, m, StateMsg{State: session.StateConnecting})
	if _, cmd = update(t, m, key("enter")); cmd != nil {
		t.Fatal("enter must be ignored while connecting")
	}

	m, _ = update(t, m, StateMsg{State: session.StateConnected})
	_, cmd = update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("expected disconnect command")
	}
	cmd()
	if ctl.disconnects != 1 {
		t.Errorf("disconnects = %d", ctl.disconnects)
	}
}

func TestTUISpaceTogglesMute(t *testing.T) {
	ctl := &stubController{}
	var connects int
	m := newTestModel(ctl, &connects)

	m, _ = update(t, m, key(" "))
	if ctl.Paused() {
		t.Fatal("mute must be ignored while disconnected")
	}

	ctl.state = session.StateConnected
	m, _ = update(t, m, StateMsg{State: session.StateConnected})
	m, _ = update(t, m, key(" "))
	if !ctl.Paused() {
		t.Fatal("space should mute")
	}
	m, _ = update(t, m, MutedMsg{Muted: true})
	if !strings.Contains(m.View(), "MUTED") {
		t.Error("view should show muted status")
	}
	update(t, m, key(" "))
	if ctl.Paused() {
		t.Error("second space should unmute")
	}
}

func TestTUIViewPlaceholderAndTranscript(t *testing.T) {
	ctl := &stubController{}
	var connects int
	m := newTestModel(ctl, &connects)

	v := m.View()
	if !strings.Contains(v, awaitingInput) {
		t.Error("expected placeholder")
	}
	if !strings.Contains(v, "STANDBY") {
		t.Error("expected standby status")
	}

	var a transcript.Assembler
	var tr transcript.Transcript
	tr = a.Apply(tr, transcript.Event{Text: "what time is it", Sender: transcript.SenderUser})
	tr = a.Apply(tr, transcript.Event{Sender: transcript.SenderUser, Final: true})
	tr = a.Apply(tr, transcript.Event{Text: "almost noon", Sender: transcript.SenderModel})

	m, _ = update(t, m, TranscriptMsg{Transcript: tr})
	v = m.View()
	for _, want := range []string{userLabel, modelLabel, "what time is it", "almost noon" + partialCursor} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(v, awaitingInput) {
		t.Error("placeholder should be gone")
	}
}

func TestTUIErrorAndMissingKey(t *testing.T) {
	ctl := &stubController{}
	var connects int
	m := newTestModel(ctl, &connects)
	m.hasKey = false

	m, _ = update(t, m, ErrorMsg{Err: errors.New("dial failed")})
	v := m.View()
	if !strings.Contains(v, "dial failed") {
		t.Error("expected error text")
	}
	if !strings.Contains(v, missingKeyNotice) {
		t.Error("expected missing key notice")
	}

	m, _ = update(t, m, StateMsg{State: session.StateConnecting})
	if m.lastErr != "" {
		t.Error("error should clear on a new attempt")
	}
}

func TestTUIClearAndQuit(t *testing.T) {
	ctl := &stubController{}
	var connects int
	m := newTestModel(ctl, &connects)

	m, _ = update(t, m, key("x"))
	if ctl.cleared != 1 {
		t.Errorf("cleared = %d", ctl.cleared)
	}
	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestRenderTranscriptKeepsNewest(t *testing.T) {
	var a transcript.Assembler
	var tr transcript.Transcript
	for i := 0; i < 20; i++ {
		sender := transcript.SenderUser
		if i%2 == 1 {
			sender = transcript.SenderModel
		}
		tr = a.Apply(tr, transcript.Event{Text: strings.Repeat("w", i+1), Sender: sender, Final: true})
	}
	out := renderTranscript(tr, 40, 12)
	if n := strings.Count(out, "\n") + 1; n > 12 {
		t.Errorf("rendered %d lines, want <= 12", n)
	}
	if !strings.Contains(out, strings.Repeat("w", 20)) {
		t.Error("newest item should be visible")
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "w" {
			t.Error("oldest item should be dropped")
		}
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox", 10)
	want := []string{"the quick", "brown fox"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if got := wrapText("héllo wörld", 6); got[0] != "héllo" {
		t.Errorf("rune-aware wrap: %q", got)
	}
}

func TestStatsLine(t *testing.T) {
	got := statsLine(transcript.SessionStats{UserChars: 12, ModelChars: 40, ConnectedS: 75.4})
	if got != "user 12 chars | model 40 chars | 01:15" {
		t.Errorf("got %q", got)
	}
}

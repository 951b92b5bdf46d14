package hotkey

import (
	"time"
)

// Action is what a completed or in-progress press means for the mute state.
type Action int

const (
	// ActionToggle flips mute. Emitted on release of a short press.
	ActionToggle Action = iota
	// ActionHoldStart is emitted once a press outlasts the long-press
	// threshold. The microphone should be live until ActionHoldEnd.
	ActionHoldStart
	// ActionHoldEnd is emitted on release of a long press.
	ActionHoldEnd
)

func (a Action) String() string {
	switch a {
	case ActionToggle:
		return "toggle"
	case ActionHoldStart:
		return "hold_start"
	case ActionHoldEnd:
		return "hold_end"
	}
	return "unknown"
}

// MuteKey turns raw key edges into mute actions: tap to toggle, hold to
// talk.
type MuteKey struct {
	actions chan Action
	stop    chan struct{}
}

// NewMuteKey starts interpreting hk. longPress is the hold threshold.
func NewMuteKey(hk Hotkey, longPress time.Duration) *MuteKey {
	m := &MuteKey{
		actions: make(chan Action, 4),
		stop:    make(chan struct{}),
	}
	go m.run(hk, longPress)
	return m
}

func (m *MuteKey) Actions() <-chan Action { return m.actions }

// Stop ends interpretation. It does not unregister hk.
func (m *MuteKey) Stop() { close(m.stop) }

func (m *MuteKey) emit(a Action) bool {
	select {
	case m.actions <- a:
		return true
	case <-m.stop:
		return false
	}
}

func (m *MuteKey) run(hk Hotkey, longPress time.Duration) {
	for {
		select {
		case <-hk.Keydown():
		case <-m.stop:
			return
		}

		timer := time.NewTimer(longPress)
		select {
		case <-hk.Keyup():
			timer.Stop()
			if !m.emit(ActionToggle) {
				return
			}
			continue
		case <-timer.C:
		case <-m.stop:
			timer.Stop()
			return
		}

		if !m.emit(ActionHoldStart) {
			return
		}
		select {
		case <-hk.Keyup():
		case <-m.stop:
			return
		}
		if !m.emit(ActionHoldEnd) {
			return
		}
	}
}

// Muter is the part of the session controller the mute key drives.
type Muter interface {
	Paused() bool
	SetPaused(bool)
}

// Apply folds one action into m. held tracks whether a hold temporarily
// unmuted the microphone; pass the same pointer on every call.
func Apply(m Muter, a Action, held *bool) {
	switch a {
	case ActionToggle:
		m.SetPaused(!m.Paused())
	case ActionHoldStart:
		*held = m.Paused()
		if *held {
			m.SetPaused(false)
		}
	case ActionHoldEnd:
		if *held {
			m.SetPaused(true)
		}
		*held = false
	}
}

// Package hotkey watches the global mute key. A tap toggles the microphone
// mute; holding the key talks through a mute for as long as it is held.
package hotkey

// Hotkey delivers raw press and release edges of the mute key combination.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is the human-readable name of the mute key combination.
const Combo = "Ctrl+Shift+Space"

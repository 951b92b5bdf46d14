package session

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateError is transient: a failed connect passes through it on the
	// way back to StateDisconnected.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func canTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateError
	case StateConnected, StateError:
		return to == StateDisconnected
	}
	return false
}

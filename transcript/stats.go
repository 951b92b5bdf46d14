package transcript

import (
	"time"
	"unicode/utf8"
)

// SessionStats is derived from transcript history and the connected clock;
// it is never stored.
type SessionStats struct {
	UserChars  int
	ModelChars int
	UserTurns  int
	ModelTurns int
	ConnectedS float64
}

func Stats(t Transcript, connected time.Duration) SessionStats {
	s := SessionStats{ConnectedS: connected.Seconds()}
	for _, it := range t.items {
		n := utf8.RuneCountInString(it.Text)
		switch it.Sender {
		case SenderUser:
			s.UserChars += n
			s.UserTurns++
		case SenderModel:
			s.ModelChars += n
			s.ModelTurns++
		}
	}
	return s
}

// Package clipboard copies the conversation transcript to the system
// clipboard.
package clipboard

import (
	"errors"
	"fmt"

	cb "github.com/atotto/clipboard"

	"pulse/transcript"
)

var ErrEmpty = errors.New("nothing to copy")

// Replaced in tests.
var (
	writeAll = cb.WriteAll
	readAll  = cb.ReadAll
)

func Copy(text string) error {
	if text == "" {
		return ErrEmpty
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

func Read() (string, error) {
	return readAll()
}

// CopyTranscript copies the plain-text rendering of t and returns the
// number of items copied.
func CopyTranscript(t transcript.Transcript) (int, error) {
	if t.Len() == 0 {
		return 0, ErrEmpty
	}
	if err := Copy(transcript.Format(t)); err != nil {
		return 0, err
	}
	return t.Len(), nil
}

// Verify round-trips a sentinel through the clipboard and restores the
// previous contents.
func Verify() (string, error) {
	prev, _ := readAll()
	const sentinel = "pulse-clipboard-check"
	if err := writeAll(sentinel); err != nil {
		return "", fmt.Errorf("clipboard write: %w", err)
	}
	got, err := readAll()
	if prev != "" {
		writeAll(prev)
	}
	if err != nil {
		return "", fmt.Errorf("clipboard read: %w", err)
	}
	if got != sentinel {
		return "", fmt.Errorf("clipboard read back %q, want %q", got, sentinel)
	}
	return "clipboard read/write ok", nil
}

package clipboard

import (
	"errors"
	"strings"
	"testing"

	"pulse/transcript"
)

type memClipboard struct {
	text    string
	failing error
}

func stub(t *testing.T, m *memClipboard) {
	t.Helper()
	origW, origR := writeAll, readAll
	writeAll = func(s string) error {
		if m.failing != nil {
			return m.failing
		}
		m.text = s
		return nil
	}
	readAll = func() (string, error) { return m.text, nil }
	t.Cleanup(func() { writeAll, readAll = origW, origR })
}

func TestCopyTranscript(t *testing.T) {
	m := &memClipboard{}
	stub(t, m)

	var a transcript.Assembler
	var tr transcript.Transcript
	tr = a.Apply(tr, transcript.Event{Text: "hello", Sender: transcript.SenderUser, Final: true})
	tr = a.Apply(tr, transcript.Event{Text: "hi there", Sender: transcript.SenderModel, Final: true})

	n, err := CopyTranscript(tr)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("copied %d items, want 2", n)
	}
	if m.text != transcript.Format(tr) {
		t.Errorf("clipboard = %q", m.text)
	}
	if !strings.Contains(m.text, "hello") || !strings.Contains(m.text, "hi there") {
		t.Errorf("clipboard missing text: %q", m.text)
	}
}

func TestCopyEmpty(t *testing.T) {
	m := &memClipboard{text: "keep"}
	stub(t, m)

	if _, err := CopyTranscript(transcript.Transcript{}); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if err := Copy(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if m.text != "keep" {
		t.Errorf("clipboard overwritten: %q", m.text)
	}
}

func TestCopyWrapsError(t *testing.T) {
	boom := errors.New("no xclip")
	stub(t, &memClipboard{failing: boom})
	if err := Copy("x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestVerifyRestoresPrevious(t *testing.T) {
	m := &memClipboard{text: "user data"}
	stub(t, m)

	msg, err := Verify()
	if err != nil {
		t.Fatal(err)
	}
	if msg == "" {
		t.Error("empty message")
	}
	if m.text != "user data" {
		t.Errorf("clipboard = %q, want restored", m.text)
	}
}

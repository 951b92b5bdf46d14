// Package transcript merges streamed partial and final text fragments from
// both speakers into ordered conversational turns.
package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Sender int

const (
	SenderUser Sender = iota
	SenderModel
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderModel:
		return "model"
	default:
		return "unknown"
	}
}

// Item is one conversational turn. Items with Partial=false never change.
type Item struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
	Partial   bool
}

// Event is a raw transcription update before merging.
type Event struct {
	Text   string
	Sender Sender
	Final  bool
}

// Transcript is an immutable ordered list of items. The zero value is empty.
type Transcript struct {
	items []Item
}

func (t Transcript) Len() int { return len(t.items) }

// Items returns a copy safe to retain or modify.
func (t Transcript) Items() []Item {
	out := make([]Item, len(t.items))
	copy(out, t.items)
	return out
}

func (t Transcript) At(i int) Item { return t.items[i] }

func (t Transcript) Last() (Item, bool) {
	if len(t.items) == 0 {
		return Item{}, false
	}
	return t.items[len(t.items)-1], true
}

// openIndex returns the index of the most recent partial item from s, or -1.
func (t Transcript) openIndex(s Sender) int {
	for i := len(t.items) - 1; i >= 0; i-- {
		if it := t.items[i]; it.Sender == s && it.Partial {
			return i
		}
	}
	return -1
}

// Assembler applies events to transcripts. Zero-value fields fall back to
// time.Now and random UUIDs.
type Assembler struct {
	Now   func() time.Time
	NewID func() string
}

func (a Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Assembler) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

// Apply returns the transcript after ev. t itself is never modified.
//
// A fragment extends the open partial item of the same sender wherever it
// sits, so interleaved speakers keep their creation order; a final event
// closes it. Otherwise a new item starts, except that an empty final with
// nothing open is ignored.
func (a Assembler) Apply(t Transcript, ev Event) Transcript {
	if i := t.openIndex(ev.Sender); i >= 0 {
		it := t.items[i]
		if ev.Final {
			it.Partial = false
		}
		it.Text += ev.Text

		items := make([]Item, len(t.items))
		copy(items, t.items)
		items[i] = it
		return Transcript{items: items}
	}

	if ev.Text == "" && ev.Final {
		return t
	}

	items := make([]Item, len(t.items), len(t.items)+1)
	copy(items, t.items)
	items = append(items, Item{
		ID:        a.newID(),
		Text:      ev.Text,
		Sender:    ev.Sender,
		Timestamp: a.now(),
		Partial:   !ev.Final,
	})
	return Transcript{items: items}
}

// Apply uses a default Assembler.
func Apply(t Transcript, ev Event) Transcript {
	return Assembler{}.Apply(t, ev)
}

// Format renders the transcript as plain "sender: text" lines.
func Format(t Transcript) string {
	var b strings.Builder
	for _, it := range t.items {
		b.WriteString(it.Sender.String())
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(it.Text))
		b.WriteString("\n")
	}
	return b.String()
}

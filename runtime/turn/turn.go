// Package turn aggregates per-speaker transcriptions into turns and seals
// them one at a time for the response pipeline.
package turn

import (
	"strings"

	"github.com/google/uuid"
)

// Entry is one speaker's accumulated text within a turn.
type Entry struct {
	SpeakerID string
	Username  string
	Text      string
}

// Turn is an arrival-ordered mapping from speaker to transcript.
type Turn struct {
	ID      string
	order   []string
	entries map[string]*Entry
}

// New returns an empty turn with a fresh id.
func New() *Turn {
	return &Turn{
		ID:      uuid.NewString(),
		entries: make(map[string]*Entry),
	}
}

// Append adds text for the speaker, space-joined with any earlier text in
// this turn. A speaker keeps the position of its first contribution.
func (t *Turn) Append(speakerID, username, text string) {
	if e, ok := t.entries[speakerID]; ok {
		if e.Text == "" {
			e.Text = text
		} else {
			e.Text += " " + text
		}
		if username != "" {
			e.Username = username
		}
		return
	}
	t.order = append(t.order, speakerID)
	t.entries[speakerID] = &Entry{SpeakerID: speakerID, Username: username, Text: text}
}

// Entries returns the entries in arrival order.
func (t *Turn) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.entries[id])
	}
	return out
}

// Speakers returns the speaker ids in arrival order.
func (t *Turn) Speakers() []string {
	return append([]string(nil), t.order...)
}

// Text returns the transcript of one speaker.
func (t *Turn) Text(speakerID string) string {
	if e, ok := t.entries[speakerID]; ok {
		return e.Text
	}
	return ""
}

// Len returns the number of speakers in the turn.
func (t *Turn) Len() int {
	return len(t.order)
}

// Empty reports whether the turn holds no text.
func (t *Turn) Empty() bool {
	return len(t.order) == 0
}

// Chars returns the total transcript length.
func (t *Turn) Chars() int {
	n := 0
	for _, e := range t.entries {
		n += len(e.Text)
	}
	return n
}

// Clone returns a deep copy that keeps the turn id.
func (t *Turn) Clone() *Turn {
	c := &Turn{
		ID:      t.ID,
		order:   append([]string(nil), t.order...),
		entries: make(map[string]*Entry, len(t.entries)),
	}
	for id, e := range t.entries {
		cp := *e
		c.entries[id] = &cp
	}
	return c
}

// String renders the turn one speaker per line.
func (t *Turn) String() string {
	var sb strings.Builder
	for i, e := range t.Entries() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.SpeakerID)
		sb.WriteString(": ")
		sb.WriteString(e.Text)
	}
	return sb.String()
}

package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurn_AppendJoinsPerSpeaker(t *testing.T) {
	tr := New()
	tr.Append("u1", "alice", "hey")
	tr.Append("u2", "bob", "hi")
	tr.Append("u1", "", "GPT")

	assert.Equal(t, []string{"u1", "u2"}, tr.Speakers())
	assert.Equal(t, "hey GPT", tr.Text("u1"))
	assert.Equal(t, []Entry{
		{SpeakerID: "u1", Username: "alice", Text: "hey GPT"},
		{SpeakerID: "u2", Username: "bob", Text: "hi"},
	}, tr.Entries())
	assert.Equal(t, 9, tr.Chars())
	assert.Equal(t, "u1: hey GPT\nu2: hi", tr.String())
}

func TestTurn_CloneIsIndependent(t *testing.T) {
	tr := New()
	tr.Append("u1", "alice", "one")

	c := tr.Clone()
	tr.Append("u1", "alice", "two")
	tr.Append("u2", "bob", "three")

	assert.Equal(t, tr.ID, c.ID)
	assert.Equal(t, "one", c.Text("u1"))
	assert.Equal(t, 1, c.Len())
	assert.True(t, New().Empty())
}

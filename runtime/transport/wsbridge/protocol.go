// Package wsbridge exposes voice connections to an external voice gateway
// over WebSocket. The gateway joins the voice channel, forwards per-speaker
// audio and activity, and plays back the frames it receives. Every message
// is one msgpack-encoded binary frame.
package wsbridge

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies a bridge message.
type MessageType string

// Gateway to bridge messages.
const (
	// TypeHello must be the first message of every socket.
	TypeHello MessageType = "hello"
	// TypeState reports a connection state change.
	TypeState MessageType = "state"
	// TypeSpeechStart reports that a speaker started talking.
	TypeSpeechStart MessageType = "speech_start"
	// TypeSpeechEnd reports that a speaker went quiet.
	TypeSpeechEnd MessageType = "speech_end"
	// TypeRoster replaces the known participants.
	TypeRoster MessageType = "roster"
)

// Messages in both directions.
const (
	// TypeAudio carries PCM16. From the gateway it is tagged with a speaker;
	// to the gateway it is one outgoing frame.
	TypeAudio MessageType = "audio"
)

// Bridge to gateway messages.
const (
	// TypeText posts a text reply next to the voice channel.
	TypeText MessageType = "text"
	// TypeDestroy asks the gateway to leave the voice channel.
	TypeDestroy MessageType = "destroy"
)

// Participant is a roster entry.
type Participant struct {
	ID       string `msgpack:"id"`
	Username string `msgpack:"username"`
	Bot      bool   `msgpack:"bot,omitempty"`
}

// Message is the single envelope of the bridge protocol. Only the fields
// relevant to Type are set.
type Message struct {
	Type         MessageType   `msgpack:"type"`
	ConnectionID string        `msgpack:"connection_id,omitempty"`
	SampleRate   int           `msgpack:"sample_rate,omitempty"`
	Channels     int           `msgpack:"channels,omitempty"`
	State        string        `msgpack:"state,omitempty"`
	Speaker      string        `msgpack:"speaker,omitempty"`
	PCM          []byte        `msgpack:"pcm,omitempty"`
	Text         string        `msgpack:"text,omitempty"`
	Participants []Participant `msgpack:"participants,omitempty"`
}

// Encode serializes m.
func Encode(m *Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses one message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("decode message: missing type")
	}
	return &m, nil
}

// Package transporttest provides an in-memory transport.Connection for tests.
package transporttest

import (
	"bytes"
	"io"
	"sync"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

// Conn is a scriptable in-memory connection. Tests drive speech with
// StartSpeaking, Speak and StopSpeaking, and inspect played frames with Frames.
type Conn struct {
	id string

	mu         sync.Mutex
	state      transport.ConnState
	streams    map[string]*stream
	subscribes map[string]int
	frames     [][]byte
	destroyed  bool

	// SubscribeErr, when set, is returned from every Subscribe call.
	SubscribeErr error

	speechStart transport.Listeners[string]
	speechEnd   transport.Listeners[string]
	states      transport.Listeners[transport.StateChange]
}

var _ transport.Connection = (*Conn)(nil)

// NewConn returns a ready connection.
func NewConn(id string) *Conn {
	return &Conn{
		id:         id,
		state:      transport.StateReady,
		streams:    make(map[string]*stream),
		subscribes: make(map[string]int),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// State returns the current state.
func (c *Conn) State() transport.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the connection and notifies listeners.
func (c *Conn) SetState(to transport.ConnState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.states.Emit(transport.StateChange{From: from, To: to})
}

// OnStateChange registers a state listener.
func (c *Conn) OnStateChange(fn func(transport.StateChange)) func() {
	return c.states.Add(fn)
}

// OnSpeechStart registers a speech start listener.
func (c *Conn) OnSpeechStart(fn func(string)) func() {
	return c.speechStart.Add(fn)
}

// OnSpeechEnd registers a speech end listener.
func (c *Conn) OnSpeechEnd(fn func(string)) func() {
	return c.speechEnd.Add(fn)
}

// SpeechListeners returns the number of registered start and end listeners.
func (c *Conn) SpeechListeners() (start, end int) {
	return c.speechStart.Len(), c.speechEnd.Len()
}

// Subscribe opens a stream that receives audio passed to Speak until the
// next StopSpeaking.
func (c *Conn) Subscribe(speakerID string, _ transport.SubscribeOptions) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	s := newStream()
	c.streams[speakerID] = s
	c.subscribes[speakerID]++
	return s, nil
}

// Subscribes returns how many streams were opened for the speaker.
func (c *Conn) Subscribes(speakerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes[speakerID]
}

// InputFormat returns 16kHz mono.
func (c *Conn) InputFormat() audio.Format { return audio.FormatSTT }

// OutputFormat returns 24kHz mono.
func (c *Conn) OutputFormat() audio.Format { return audio.FormatTTS }

// WriteFrame records an outgoing frame.
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return transport.ErrDestroyed
	}
	c.frames = append(c.frames, bytes.Clone(frame))
	return nil
}

// Frames returns the number of frames written so far.
func (c *Conn) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Destroy marks the connection destroyed.
func (c *Conn) Destroy() error {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
	c.SetState(transport.StateDestroyed)
	return nil
}

// StartSpeaking emits a speech start for the speaker.
func (c *Conn) StartSpeaking(speakerID string) {
	c.speechStart.Emit(speakerID)
}

// Speak appends audio to the speaker's open stream, if any.
func (c *Conn) Speak(speakerID string, pcm []byte) {
	c.mu.Lock()
	s := c.streams[speakerID]
	c.mu.Unlock()
	if s != nil {
		s.write(pcm)
	}
}

// StopSpeaking emits a speech end and ends the speaker's open stream.
func (c *Conn) StopSpeaking(speakerID string) {
	c.speechEnd.Emit(speakerID)
	c.EndStream(speakerID)
}

// EndStream ends the speaker's open stream without a speech end event.
func (c *Conn) EndStream(speakerID string) {
	c.mu.Lock()
	s := c.streams[speakerID]
	delete(c.streams, speakerID)
	c.mu.Unlock()
	if s != nil {
		s.finish()
	}
}

type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newStream() *stream {
	s := &stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *stream) write(p []byte) {
	s.mu.Lock()
	s.buf.Write(p)
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *stream) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.buf.Len() == 0 {
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

func (s *stream) Close() error {
	s.finish()
	return nil
}

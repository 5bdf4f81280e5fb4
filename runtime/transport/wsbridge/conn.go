package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

// ErrNotAttached is returned when no gateway socket is attached.
var ErrNotAttached = errors.New("no gateway attached")

// Conn is a voice connection driven by a gateway socket. The socket may be
// replaced when the gateway reconnects under the same connection id.
type Conn struct {
	id        string
	roster    *Roster
	writeWait time.Duration
	onDestroy func(*Conn)

	mu      sync.Mutex
	ws      *websocket.Conn
	input   audio.Format
	state   transport.ConnState
	streams map[string]*speakerStream
	// set once Destroy has started
	destroying bool

	// serializes socket writes
	writeMu sync.Mutex

	speechStart transport.Listeners[string]
	speechEnd   transport.Listeners[string]
	states      transport.Listeners[transport.StateChange]
}

var (
	_ transport.Connection  = (*Conn)(nil)
	_ transport.TextChannel = (*Conn)(nil)
)

func newConn(id string, roster *Roster, writeWait time.Duration, onDestroy func(*Conn)) *Conn {
	return &Conn{
		id:        id,
		roster:    roster,
		writeWait: writeWait,
		onDestroy: onDestroy,
		input:     audio.FormatSTT,
		state:     transport.StateConnecting,
		streams:   make(map[string]*speakerStream),
	}
}

// ID returns the connection id chosen by the gateway.
func (c *Conn) ID() string { return c.id }

// State returns the last reported state.
func (c *Conn) State() transport.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for state transitions.
func (c *Conn) OnStateChange(fn func(transport.StateChange)) func() {
	return c.states.Add(fn)
}

// OnSpeechStart registers fn for speaker-start notifications.
func (c *Conn) OnSpeechStart(fn func(string)) func() {
	return c.speechStart.Add(fn)
}

// OnSpeechEnd registers fn for speaker-end notifications.
func (c *Conn) OnSpeechEnd(fn func(string)) func() {
	return c.speechEnd.Add(fn)
}

// InputFormat is the PCM layout announced in the gateway hello.
func (c *Conn) InputFormat() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// OutputFormat is the layout of frames sent to the gateway.
func (c *Conn) OutputFormat() audio.Format { return audio.FormatTTS }

// Subscribe opens the speaker's audio. A previous stream of the same
// speaker is ended first.
func (c *Conn) Subscribe(speakerID string, opts transport.SubscribeOptions) (io.ReadCloser, error) {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return nil, transport.ErrDestroyed
	}
	old := c.streams[speakerID]
	s := newSpeakerStream(opts, func(ended *speakerStream) { c.dropStream(speakerID, ended) })
	c.streams[speakerID] = s
	c.mu.Unlock()

	if old != nil {
		old.finish()
	}
	return s, nil
}

func (c *Conn) dropStream(speakerID string, s *speakerStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams[speakerID] == s {
		delete(c.streams, speakerID)
	}
}

// WriteFrame sends one outgoing frame. Frames written while no gateway is
// attached are dropped.
func (c *Conn) WriteFrame(frame []byte) error {
	err := c.send(&Message{Type: TypeAudio, PCM: frame})
	if errors.Is(err, ErrNotAttached) {
		return nil
	}
	return err
}

// SendText posts a text reply through the gateway.
func (c *Conn) SendText(_ context.Context, text string) error {
	return c.send(&Message{Type: TypeText, Text: text})
}

func (c *Conn) send(m *Message) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()
	if state == transport.StateDestroyed {
		return transport.ErrDestroyed
	}
	if ws == nil {
		return ErrNotAttached
	}
	return c.writeTo(ws, m)
}

func (c *Conn) writeTo(ws *websocket.Conn, m *Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}
	return nil
}

// Destroy tells the gateway to leave and releases the connection.
func (c *Conn) Destroy() error {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return transport.ErrDestroyed
	}
	c.destroying = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		if err := c.writeTo(ws, &Message{Type: TypeDestroy}); err != nil {
			logger.Debug("failed to notify gateway of destroy", "connection_id", c.id, "error", err)
		}
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "destroyed"),
			time.Now().Add(c.writeWait))
		c.writeMu.Unlock()
		_ = ws.Close()
	}

	c.endStreams()
	c.setState(transport.StateDestroyed)

	if c.onDestroy != nil {
		c.onDestroy(c)
	}
	logger.Info("voice connection destroyed", "connection_id", c.id)
	return nil
}

// attach makes ws the gateway socket, closing any previous one.
func (c *Conn) attach(ws *websocket.Conn, hello *Message) {
	c.mu.Lock()
	old := c.ws
	c.ws = ws
	if hello.SampleRate > 0 {
		c.input = audio.Format{SampleRate: hello.SampleRate, Channels: hello.Channels}
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if len(hello.Participants) > 0 {
		c.roster.Update(hello.Participants)
	}
}

// detach drops ws if it is still the gateway socket and reports the
// connection as disconnected.
func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.mu.Unlock()

	c.endStreams()
	c.setState(transport.StateDisconnected)
}

func (c *Conn) endStreams() {
	c.mu.Lock()
	streams := make([]*speakerStream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		s.finish()
	}
}

func (c *Conn) setState(to transport.ConnState) {
	c.mu.Lock()
	from := c.state
	if from == to || from == transport.StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	logger.Debug("voice connection state", "connection_id", c.id, "from", from, "to", to)
	c.states.Emit(transport.StateChange{From: from, To: to})
}

func (c *Conn) handle(m *Message) {
	switch m.Type {
	case TypeState:
		c.handleState(transport.ConnState(m.State))
	case TypeSpeechStart:
		if m.Speaker != "" {
			c.speechStart.Emit(m.Speaker)
		}
	case TypeSpeechEnd:
		if m.Speaker != "" {
			c.speechEnd.Emit(m.Speaker)
		}
	case TypeAudio:
		c.mu.Lock()
		s := c.streams[m.Speaker]
		c.mu.Unlock()
		if s != nil {
			s.write(m.PCM)
		}
	case TypeRoster:
		c.roster.Update(m.Participants)
	default:
		logger.Debug("ignoring gateway message", "connection_id", c.id, "type", m.Type)
	}
}

func (c *Conn) handleState(to transport.ConnState) {
	switch to {
	case transport.StateConnecting, transport.StateSignalling, transport.StateReady, transport.StateDisconnected:
		c.setState(to)
	case transport.StateDestroyed:
		_ = c.Destroy()
	default:
		logger.Warn("gateway reported unknown state", "connection_id", c.id, "state", to)
	}
}

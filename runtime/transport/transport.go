// Package transport defines the voice connection contract the session core
// consumes: per-speaker activity notifications, per-speaker audio streams,
// an outgoing audio sink, connection state changes and a text channel.
package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
)

// ConnState is the lifecycle state of a voice connection.
type ConnState string

// Connection states.
const (
	StateConnecting   ConnState = "connecting"
	StateSignalling   ConnState = "signalling"
	StateReady        ConnState = "ready"
	StateDisconnected ConnState = "disconnected"
	StateDestroyed    ConnState = "destroyed"
)

// Errors returned by transports.
var (
	// ErrDestroyed is returned by operations on a destroyed connection.
	ErrDestroyed = errors.New("connection destroyed")
	// ErrStateTimeout is returned when a state wait expires.
	ErrStateTimeout = errors.New("timed out waiting for connection state")
)

// StateChange describes a connection state transition.
type StateChange struct {
	From ConnState
	To   ConnState
}

// SubscribeOptions bounds a per-speaker audio stream.
type SubscribeOptions struct {
	// EndAfterSilence ends the stream once no audio arrived for this long.
	EndAfterSilence time.Duration
	// MaxDuration caps the stream length regardless of activity. Zero means
	// the transport default.
	MaxDuration time.Duration
}

// Receiver delivers incoming voice activity.
type Receiver interface {
	// OnSpeechStart registers fn for speaker-start notifications.
	OnSpeechStart(fn func(speakerID string)) (unsubscribe func())
	// OnSpeechEnd registers fn for speaker-end notifications.
	OnSpeechEnd(fn func(speakerID string)) (unsubscribe func())
	// Subscribe opens the speaker's audio as a PCM16 stream in InputFormat.
	// The stream reaches EOF on its own once opts is satisfied.
	Subscribe(speakerID string, opts SubscribeOptions) (io.ReadCloser, error)
	// InputFormat is the PCM layout of subscribed streams.
	InputFormat() audio.Format
}

// AudioSink accepts outgoing PCM16 frames.
type AudioSink interface {
	WriteFrame(frame []byte) error
	OutputFormat() audio.Format
}

// Connection is one bound voice channel.
type Connection interface {
	Receiver
	AudioSink

	ID() string
	State() ConnState
	OnStateChange(fn func(StateChange)) (unsubscribe func())
	Destroy() error
}

// TextChannel posts text replies next to the voice channel.
type TextChannel interface {
	SendText(ctx context.Context, text string) error
}

// TextChannelFunc adapts a function to TextChannel.
type TextChannelFunc func(ctx context.Context, text string) error

// SendText calls f(ctx, text).
func (f TextChannelFunc) SendText(ctx context.Context, text string) error {
	return f(ctx, text)
}

// WaitForState blocks until conn is in one of states, the timeout expires or
// ctx is done. It returns ErrDestroyed if the connection is destroyed while
// waiting for another state.
func WaitForState(ctx context.Context, conn Connection, timeout time.Duration, states ...ConnState) error {
	reached := make(chan ConnState, 1)
	notify := func(s ConnState) {
		select {
		case reached <- s:
		default:
		}
	}
	unsubscribe := conn.OnStateChange(func(c StateChange) {
		if matches(c.To, states) || c.To == StateDestroyed {
			notify(c.To)
		}
	})
	defer unsubscribe()

	if s := conn.State(); matches(s, states) || s == StateDestroyed {
		notify(s)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-reached:
		if matches(s, states) {
			return nil
		}
		return ErrDestroyed
	case <-timer.C:
		return ErrStateTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func matches(s ConnState, states []ConnState) bool {
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}

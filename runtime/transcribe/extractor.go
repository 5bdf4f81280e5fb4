// Package transcribe filters voice participants, drives the segmenter for
// human speakers and emits per-speaker transcriptions.
package transcribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/identity"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/segment"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

const defaultLookupTimeout = 5 * time.Second

// Transcription is a non-empty, trimmed utterance attributed to one speaker.
type Transcription struct {
	SpeakerID string
	Username  string
	Text      string
	Segment   segment.Segment
}

// Resolution reports every finished segment of a human speaker, including
// empty and failed ones.
type Resolution struct {
	SpeakerID string
	Segment   segment.Segment
	HasSpeech bool
}

// Segmenter is the part of segment.Segmenter the extractor drives.
type Segmenter interface {
	OnSpeechStart(speakerID string) (<-chan segment.Result, bool)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithEmitter publishes transcription.ready events.
func WithEmitter(e *events.Emitter) Option {
	return func(x *Extractor) {
		x.emitter = e
	}
}

// WithLookupTimeout bounds identity lookups.
func WithLookupTimeout(d time.Duration) Option {
	return func(x *Extractor) {
		x.lookupTimeout = d
	}
}

// Extractor wraps a Segmenter for one session.
type Extractor struct {
	seg           Segmenter
	resolver      identity.Resolver
	emitter       *events.Emitter
	lookupTimeout time.Duration

	ready    transport.Listeners[Transcription]
	resolved transport.Listeners[Resolution]

	mu     sync.Mutex
	bots   map[string]bool
	closed bool
}

// New creates an Extractor.
func New(seg Segmenter, resolver identity.Resolver, opts ...Option) *Extractor {
	x := &Extractor{
		seg:           seg,
		resolver:      resolver,
		lookupTimeout: defaultLookupTimeout,
		bots:          make(map[string]bool),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// OnTranscription registers fn for non-empty transcriptions.
func (x *Extractor) OnTranscription(fn func(Transcription)) (unsubscribe func()) {
	return x.ready.Add(fn)
}

// OnResolved registers fn for every resolved segment of a human speaker.
func (x *Extractor) OnResolved(fn func(Resolution)) (unsubscribe func()) {
	return x.resolved.Add(fn)
}

// OnSpeechStart handles a speaker-start notification. It never blocks: the
// identity lookup, the segment and its transcription all run in the
// background.
func (x *Extractor) OnSpeechStart(speakerID string) {
	x.mu.Lock()
	skip := x.closed || x.bots[speakerID]
	x.mu.Unlock()
	if skip {
		return
	}
	go x.handle(speakerID)
}

// Close stops handling new speech and drops emissions of in-flight segments.
func (x *Extractor) Close() {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
}

func (x *Extractor) handle(speakerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), x.lookupTimeout)
	who, err := x.resolver.Resolve(ctx, speakerID)
	cancel()
	if err != nil {
		logger.Warn("identity lookup failed, ignoring speech", "speaker_id", speakerID, "error", err)
		return
	}
	if who.Bot {
		x.mu.Lock()
		x.bots[speakerID] = true
		x.mu.Unlock()
		logger.Debug("ignoring automated participant", "speaker_id", speakerID)
		return
	}

	results, ok := x.seg.OnSpeechStart(speakerID)
	if !ok {
		return
	}
	res := <-results

	x.mu.Lock()
	closed := x.closed
	x.mu.Unlock()
	if closed {
		return
	}

	text := strings.TrimSpace(res.Text)
	// The interrupt outcome settles before the text reaches any turn.
	x.resolved.Emit(Resolution{SpeakerID: speakerID, Segment: res.Segment, HasSpeech: text != ""})
	if text == "" {
		return
	}

	x.emitter.TranscriptionReady(speakerID, text)
	x.ready.Emit(Transcription{
		SpeakerID: speakerID,
		Username:  who.Username,
		Text:      text,
		Segment:   res.Segment,
	})
}

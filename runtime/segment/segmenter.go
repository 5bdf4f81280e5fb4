// Package segment turns per-speaker speech-start notifications into bounded
// audio segments and transcribes each one exactly once.
package segment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

const (
	// DefaultSilenceGap ends a segment after this much silence.
	DefaultSilenceGap = 1000 * time.Millisecond
	// DefaultMaxDuration caps a single segment.
	DefaultMaxDuration = 30 * time.Second

	tracerName = "github.com/wlyh514/discord-llmvc-bot/runtime/segment"
)

// Segment is one bounded utterance by one speaker.
type Segment struct {
	ID        string
	SpeakerID string
	StartedAt time.Time
	EndedAt   time.Time
	Bytes     int
}

// Duration returns the wall-clock length of the segment.
func (s Segment) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Result is the outcome of transcribing a segment. Text is empty when nothing
// intelligible was said or when Err is set; a failed segment is never retried.
type Result struct {
	Segment Segment
	Text    string
	Err     error
}

// Config bounds segments and configures their transcription.
type Config struct {
	SilenceGap    time.Duration
	MaxDuration   time.Duration
	Transcription stt.TranscriptionConfig
}

// DefaultConfig returns the default segment bounds.
func DefaultConfig() Config {
	return Config{
		SilenceGap:    DefaultSilenceGap,
		MaxDuration:   DefaultMaxDuration,
		Transcription: stt.DefaultTranscriptionConfig(),
	}
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithEmitter publishes segment.resolved events.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Segmenter) {
		s.emitter = e
	}
}

// WithContext sets the base context for transcription calls. It defaults to
// context.Background.
func WithContext(ctx context.Context) Option {
	return func(s *Segmenter) {
		s.ctx = ctx
	}
}

// Segmenter tracks which speakers have an open segment. At most one segment
// per speaker is open at any time.
type Segmenter struct {
	receiver transport.Receiver
	stt      stt.Service
	cfg      Config
	emitter  *events.Emitter
	ctx      context.Context

	mu     sync.Mutex
	active map[string]bool
	closed bool
}

// New creates a Segmenter reading from receiver and transcribing with svc.
//
//nolint:gocritic // hugeParam: config is copied once at construction
func New(receiver transport.Receiver, svc stt.Service, cfg Config, opts ...Option) *Segmenter {
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = DefaultSilenceGap
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	s := &Segmenter{
		receiver: receiver,
		stt:      svc,
		cfg:      cfg,
		ctx:      context.Background(),
		active:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSpeechStart opens a segment for the speaker. It returns false if the
// speaker already has an open segment or the segmenter is closed. Otherwise
// the returned channel receives exactly one Result once the segment has
// ended at its silence boundary and been transcribed.
func (s *Segmenter) OnSpeechStart(speakerID string) (<-chan Result, bool) {
	s.mu.Lock()
	if s.closed || s.active[speakerID] {
		s.mu.Unlock()
		return nil, false
	}
	s.active[speakerID] = true
	s.mu.Unlock()

	seg := Segment{
		ID:        uuid.NewString(),
		SpeakerID: speakerID,
		StartedAt: time.Now(),
	}
	out := make(chan Result, 1)

	stream, err := s.receiver.Subscribe(speakerID, transport.SubscribeOptions{
		EndAfterSilence: s.cfg.SilenceGap,
		MaxDuration:     s.cfg.MaxDuration,
	})
	if err != nil {
		s.markInactive(speakerID)
		seg.EndedAt = seg.StartedAt
		out <- s.resolve(seg, "", fmt.Errorf("subscribe: %w", err), 0)
		return out, true
	}

	go s.run(seg, stream, out)
	return out, true
}

// Active reports whether the speaker has an open segment.
func (s *Segmenter) Active(speakerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[speakerID]
}

// Close stops accepting new segments. Segments already open run to their
// silence boundary and their results are still delivered.
func (s *Segmenter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Segmenter) markInactive(speakerID string) {
	s.mu.Lock()
	delete(s.active, speakerID)
	s.mu.Unlock()
}

func (s *Segmenter) run(seg Segment, stream io.ReadCloser, out chan<- Result) {
	format := s.receiver.InputFormat()
	limit := int64(format.BytesPerSecond()) * int64(s.cfg.MaxDuration/time.Millisecond) / 1000

	pcm, readErr := io.ReadAll(io.LimitReader(stream, limit))
	_ = stream.Close()
	seg.EndedAt = time.Now()
	seg.Bytes = len(pcm)
	s.markInactive(seg.SpeakerID)

	if readErr != nil {
		out <- s.resolve(seg, "", fmt.Errorf("read segment: %w", readErr), 0)
		return
	}
	if len(pcm) == 0 {
		out <- s.resolve(seg, "", nil, 0)
		return
	}

	text, latency, err := s.transcribe(seg, pcm, format)
	out <- s.resolve(seg, text, err, latency)
}

func (s *Segmenter) transcribe(seg Segment, pcm []byte, format audio.Format) (string, time.Duration, error) {
	ctx := logger.WithSpeakerID(s.ctx, seg.SpeakerID)
	ctx = logger.WithSegmentID(ctx, seg.ID)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "segment.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("speaker.id", seg.SpeakerID),
		attribute.Int("segment.bytes", len(pcm)),
	)

	cfg := s.cfg.Transcription
	if format != audio.FormatSTT {
		converted, err := audio.Convert(pcm, format, audio.FormatSTT)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return "", 0, fmt.Errorf("convert segment audio: %w", err)
		}
		pcm = converted
	}
	cfg.SampleRate = audio.FormatSTT.SampleRate
	cfg.Channels = audio.FormatSTT.Channels

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, pcm, cfg)
	latency := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "segment transcription failed", "error", err, "latency", latency)
		return "", latency, err
	}
	return strings.TrimSpace(text), latency, nil
}

func (s *Segmenter) resolve(seg Segment, text string, err error, latency time.Duration) Result {
	data := &events.SegmentResolvedData{
		SpeakerID:  seg.SpeakerID,
		SegmentID:  seg.ID,
		Bytes:      seg.Bytes,
		Duration:   seg.Duration(),
		STTLatency: latency,
	}
	switch {
	case err != nil:
		data.Outcome = events.SegmentFailed
		data.Error = err.Error()
	case text == "":
		data.Outcome = events.SegmentEmpty
	default:
		data.Outcome = events.SegmentTranscribed
	}
	s.emitter.SegmentResolved(data)

	logger.Debug("segment resolved",
		"speaker_id", seg.SpeakerID, "segment_id", seg.ID,
		"outcome", string(data.Outcome), "bytes", seg.Bytes)
	return Result{Segment: seg, Text: text, Err: err}
}

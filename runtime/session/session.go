// Package session binds the turn-taking components to one voice connection
// and manages the lifetime of every active session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/dispatch"
	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/identity"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/playback"
	"github.com/wlyh514/discord-llmvc-bot/runtime/segment"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transcribe"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
	"github.com/wlyh514/discord-llmvc-bot/runtime/tts"
	"github.com/wlyh514/discord-llmvc-bot/runtime/turn"
)

// Session errors.
var (
	// ErrSessionClosed ends a session on request.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotReady is returned when the connection never became ready.
	ErrNotReady = errors.New("connection not ready")
	// ErrReconnectFailed ends a session whose connection did not recover.
	ErrReconnectFailed = errors.New("reconnect failed")
)

// Services are the external collaborators of a session.
type Services struct {
	STT      stt.Service
	TTS      tts.Service
	Agent    agent.Agent
	Identity identity.Resolver
	// Text receives text replies. Optional; a connection that is itself a
	// TextChannel is used when unset.
	Text transport.TextChannel
	// Events receives session events. Optional.
	Events *events.EventBus
}

func (s *Services) validate() error {
	switch {
	case s.STT == nil:
		return fmt.Errorf("speech-to-text service is required")
	case s.TTS == nil:
		return fmt.Errorf("text-to-speech service is required")
	case s.Agent == nil:
		return fmt.Errorf("agent is required")
	case s.Identity == nil:
		return fmt.Errorf("identity resolver is required")
	}
	return nil
}

// Option configures a Session.
type Option func(*Session)

// WithEndHook registers fn to run once the session has ended.
func WithEndHook(fn func(*Session)) Option {
	return func(s *Session) {
		s.onEnd = append(s.onEnd, fn)
	}
}

// Session is the turn-taking core bound to one voice connection.
type Session struct {
	id      string
	conn    transport.Connection
	cfg     Config
	emitter *events.Emitter
	ctx     context.Context
	started time.Time

	focal      *playback.FocalSet
	player     *playback.Player
	controller *playback.Controller
	segmenter  *segment.Segmenter
	extractor  *transcribe.Extractor
	aggregator *turn.Aggregator
	dispatcher *dispatch.Dispatcher

	onEnd []func(*Session)

	mu          sync.Mutex
	unsubscribe []func()
	ended       bool
	err         error
	done        chan struct{}
}

// Start waits for conn to become ready and binds a new session to it. If
// the connection is not ready within the configured timeout it is destroyed
// and ErrNotReady is returned. ctx only bounds the ready wait.
//
//nolint:gocritic // hugeParam: config is copied once per session
func Start(ctx context.Context, conn transport.Connection, svc Services, cfg Config, opts ...Option) (*Session, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := uuid.NewString()
	lctx := logger.WithSessionID(context.WithoutCancel(ctx), id)
	lctx = logger.WithConnectionID(lctx, conn.ID())

	s := &Session{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		emitter: events.NewEmitter(svc.Events, id, conn.ID()),
		ctx:     lctx,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.build(&svc); err != nil {
		return nil, err
	}

	waitStart := time.Now()
	if err := transport.WaitForState(ctx, conn, cfg.ReadyTimeout, transport.StateReady); err != nil {
		logger.WarnContext(lctx, "connection never became ready", "error", err)
		s.player.Close()
		if derr := conn.Destroy(); derr != nil && !errors.Is(derr, transport.ErrDestroyed) {
			logger.WarnContext(lctx, "failed to destroy connection", "error", derr)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	s.started = time.Now()
	s.wire()
	s.emitter.SessionStarted(time.Since(waitStart))
	logger.InfoContext(lctx, "voice session started", "ready_wait", time.Since(waitStart))
	return s, nil
}

func (s *Session) build(svc *Services) error {
	s.focal = playback.NewFocalSet()
	s.player = playback.NewPlayer(s.conn, playback.WithFrameDuration(s.cfg.FrameDuration))
	s.controller = playback.NewController(s.player, s.focal,
		playback.WithGracePeriod(s.cfg.GracePeriod),
		playback.WithEmitter(s.emitter),
	)

	dopts := []dispatch.Option{dispatch.WithEmitter(s.emitter)}
	text := svc.Text
	if tc, ok := s.conn.(transport.TextChannel); ok && text == nil {
		text = tc
	}
	if text != nil {
		dopts = append(dopts, dispatch.WithTextChannel(text))
	}
	d, err := dispatch.New(svc.Agent, svc.TTS, s.controller, s.focal, s.cfg.Dispatch, dopts...)
	if err != nil {
		s.player.Close()
		return fmt.Errorf("dispatcher: %w", err)
	}
	s.dispatcher = d

	s.segmenter = segment.New(s.conn, svc.STT, s.cfg.Segments,
		segment.WithEmitter(s.emitter),
		segment.WithContext(s.ctx),
	)
	s.extractor = transcribe.New(s.segmenter, svc.Identity,
		transcribe.WithEmitter(s.emitter),
		transcribe.WithLookupTimeout(s.cfg.LookupTimeout),
	)
	s.aggregator = turn.NewAggregator(s.dispatcher,
		turn.WithEmitter(s.emitter),
		turn.WithContext(s.ctx),
		turn.WithGate(s.controller.AcceptsTurns),
	)
	return nil
}

func (s *Session) wire() {
	unsubscribe := []func(){
		s.conn.OnSpeechStart(s.onSpeechStart),
		s.conn.OnSpeechEnd(s.onSpeechEnd),
		s.conn.OnStateChange(s.onConnState),
		s.extractor.OnTranscription(func(t transcribe.Transcription) {
			s.aggregator.Add(t.SpeakerID, t.Username, t.Text)
		}),
		s.extractor.OnResolved(func(r transcribe.Resolution) {
			s.controller.ResolveInterrupt(r.SpeakerID, r.Segment.EndedAt, r.HasSpeech)
		}),
		s.controller.OnStateChange(func(c playback.StateChange) {
			if c.To != playback.Playing {
				s.aggregator.Seal()
			}
		}),
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ConnectionID returns the id of the bound connection.
func (s *Session) ConnectionID() string { return s.conn.ID() }

// PlaybackState returns the state of the outgoing player.
func (s *Session) PlaybackState() playback.State { return s.controller.State() }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended, or nil while it is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) onSpeechStart(speakerID string) {
	s.emitter.SpeechStarted(speakerID)
	s.extractor.OnSpeechStart(speakerID)
	s.controller.OnSpeechStart(speakerID)
}

func (s *Session) onSpeechEnd(speakerID string) {
	s.emitter.SpeechEnded(speakerID)
	s.controller.OnSpeechEnd(speakerID)
}

func (s *Session) onConnState(c transport.StateChange) {
	s.emitter.ConnectionStateChanged(string(c.From), string(c.To))
	logger.InfoContext(s.ctx, "connection state changed", "from", c.From, "to", c.To)

	switch c.To {
	case transport.StateDisconnected:
		go s.reconnect()
	case transport.StateDestroyed:
		go s.end(transport.ErrDestroyed)
	}
}

func (s *Session) reconnect() {
	if err := s.awaitReconnect(); err != nil {
		logger.WarnContext(s.ctx, "connection did not recover", "error", err)
		s.end(ErrReconnectFailed)
		return
	}
	logger.InfoContext(s.ctx, "connection recovering")
}

// awaitReconnect races a wait for signalling against a wait for connecting.
// The first success wins; the other wait is cancelled and awaited.
func (s *Session) awaitReconnect() error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	waits := []transport.ConnState{transport.StateSignalling, transport.StateConnecting}
	results := make(chan error, len(waits))
	for _, state := range waits {
		go func() {
			results <- transport.WaitForState(ctx, s.conn, s.cfg.ReconnectTimeout, state, transport.StateReady)
		}()
	}

	var firstErr error
	recovered := false
	for range waits {
		err := <-results
		switch {
		case err == nil && !recovered:
			recovered = true
			cancel()
		case err != nil && firstErr == nil:
			firstErr = err
		}
	}
	if recovered {
		return nil
	}
	return firstErr
}

// End tears the session down. In-flight transcriptions, agent calls and
// syntheses are left to complete and their results are discarded.
func (s *Session) End() {
	s.end(ErrSessionClosed)
}

func (s *Session) end(cause error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = cause
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}

	s.extractor.Close()
	s.segmenter.Close()
	s.aggregator.Close()
	s.dispatcher.Close()
	s.controller.Close()
	s.player.Close()

	if s.conn.State() != transport.StateDestroyed {
		if err := s.conn.Destroy(); err != nil && !errors.Is(err, transport.ErrDestroyed) {
			logger.WarnContext(s.ctx, "failed to destroy connection", "error", err)
		}
	}

	s.emitter.SessionEnded(cause.Error(), time.Since(s.started))
	logger.InfoContext(s.ctx, "voice session ended", "reason", cause, "duration", time.Since(s.started))
	close(s.done)

	for _, fn := range s.onEnd {
		fn(s)
	}
}

func (s *Session) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Package dispatch hands sealed turns to the agent and turns the resulting
// actions into text messages and spoken audio.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/playback"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
	"github.com/wlyh514/discord-llmvc-bot/runtime/tts"
	"github.com/wlyh514/discord-llmvc-bot/runtime/turn"
)

const (
	tracerName = "github.com/wlyh514/discord-llmvc-bot/runtime/dispatch"

	// DefaultApology is spoken when the agent fails.
	DefaultApology = "Sorry, something went wrong on my end. Could you say that again?"
	// DefaultApologyInterval is the minimum time between spoken apologies.
	DefaultApologyInterval = 30 * time.Second
)

// DefaultNotices maps informational actions to the JMESPath of their
// spoken notice.
var DefaultNotices = map[string]string{
	agent.ActionWebSearch: "responseToUser",
}

// Playback is the part of the playback controller the dispatcher drives.
type Playback interface {
	Play(src io.ReadCloser) error
	Resume() bool
	PausedFor(speakers []string) bool
}

// Config configures a Dispatcher.
type Config struct {
	Synthesis       tts.SynthesisConfig
	Notices         map[string]string
	Apology         string
	ApologyInterval time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Synthesis:       tts.DefaultSynthesisConfig(),
		Notices:         DefaultNotices,
		Apology:         DefaultApology,
		ApologyInterval: DefaultApologyInterval,
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTextChannel sets where text replies go. Without one, text replies
// are dropped with a warning.
func WithTextChannel(ch transport.TextChannel) Option {
	return func(d *Dispatcher) {
		d.text = ch
	}
}

// WithEmitter publishes turn and action events.
func WithEmitter(e *events.Emitter) Option {
	return func(d *Dispatcher) {
		d.emitter = e
	}
}

// Dispatcher invokes the agent for one turn at a time and executes the
// actions it yields. It is the only writer of the focal set.
type Dispatcher struct {
	agent    agent.Agent
	speech   tts.Service
	playback Playback
	focal    *playback.FocalSet
	text     transport.TextChannel
	emitter  *events.Emitter

	synthesis tts.SynthesisConfig
	apology   string
	limiter   *rate.Limiter
	notices   map[string]*jmespath.JMESPath

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. Invalid notice expressions are reported as an
// error.
//
//nolint:gocritic // hugeParam: config is copied once at construction
func New(a agent.Agent, speech tts.Service, pb Playback, focal *playback.FocalSet, cfg Config, opts ...Option) (*Dispatcher, error) {
	if cfg.Notices == nil {
		cfg.Notices = DefaultNotices
	}
	if cfg.ApologyInterval <= 0 {
		cfg.ApologyInterval = DefaultApologyInterval
	}

	notices := make(map[string]*jmespath.JMESPath, len(cfg.Notices))
	for name, expr := range cfg.Notices {
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("notice path for %s: %w", name, err)
		}
		notices[name] = compiled
	}

	d := &Dispatcher{
		agent:     a,
		speech:    speech,
		playback:  pb,
		focal:     focal,
		synthesis: cfg.Synthesis,
		apology:   cfg.Apology,
		limiter:   rate.NewLimiter(rate.Every(cfg.ApologyInterval), 1),
		notices:   notices,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FormatInput renders a turn as one `(<userId>,<username>):<text>` line per
// speaker, in arrival order.
func FormatInput(t *turn.Turn) string {
	var sb strings.Builder
	for i, e := range t.Entries() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "(%s,%s):%s", e.SpeakerID, e.Username, e.Text)
	}
	return sb.String()
}

// Dispatch runs the agent on t and executes its actions. Malformed actions
// are skipped without affecting the others. An agent failure discards the
// turn; it is never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, t *turn.Turn) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "turn.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", t.ID),
		attribute.StringSlice("turn.speakers", t.Speakers()),
	)

	start := time.Now()
	actions := 0
	voiced := false

	for action, err := range d.agent.Invoke(ctx, FormatInput(t)) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "agent failed, discarding turn", "error", err)
			d.emitter.TurnFailed(t.ID, err, time.Since(start))
			voiced = d.apologize(ctx)
			d.resumeIfStuck(ctx, t, voiced)
			return
		}
		if d.isClosed() {
			logger.DebugContext(ctx, "session closed, discarding remaining actions")
			return
		}
		actions++
		if d.execute(ctx, t.ID, action) {
			voiced = true
		}
	}

	if actions == 0 {
		d.focal.Clear()
		logger.DebugContext(ctx, "agent chose not to respond")
	}
	d.resumeIfStuck(ctx, t, voiced)

	span.SetAttributes(attribute.Int("turn.actions", actions), attribute.Bool("turn.voiced", voiced))
	d.emitter.TurnCompleted(t.ID, actions, voiced, time.Since(start))
}

// Close makes in-flight and later dispatches discard their output.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// resumeIfStuck resumes a response paused by one of the turn's speakers
// when the turn produced no new voice.
func (d *Dispatcher) resumeIfStuck(ctx context.Context, t *turn.Turn, voiced bool) {
	if voiced || d.isClosed() {
		return
	}
	if d.playback.PausedFor(t.Speakers()) && d.playback.Resume() {
		logger.InfoContext(ctx, "no new voice for the interrupting speaker, resuming playback")
	}
}

// execute handles one action and reports whether it started new voice.
func (d *Dispatcher) execute(ctx context.Context, turnID string, action agent.Action) bool {
	if action.Name == agent.ActionReply {
		return d.reply(ctx, turnID, action)
	}

	notice, ok := d.notice(action)
	if !ok {
		logger.WarnContext(ctx, "skipping action without a notice", "action", action.Name)
		d.emitter.ActionExecuted(turnID, action.Name, events.ActionSkipped, nil)
		return false
	}
	voiced := d.speak(ctx, notice)
	d.emitter.ActionExecuted(turnID, action.Name, events.ActionOK, nil)
	return voiced
}

func (d *Dispatcher) reply(ctx context.Context, turnID string, action agent.Action) bool {
	r, err := agent.DecodeReply(action.Args)
	if err != nil {
		logger.WarnContext(ctx, "skipping malformed reply", "error", err)
		d.emitter.ActionExecuted(turnID, action.Name, events.ActionSkipped, err)
		return false
	}

	status := events.ActionOK
	var failure error

	if r.HasText() {
		if err := d.sendText(ctx, *r.Text); err != nil {
			logger.WarnContext(ctx, "text reply failed", "error", err)
			status, failure = events.ActionFailed, err
		}
	}

	voiced := false
	if r.HasVoice() {
		d.focal.Replace(r.Voice.Recipients)
		voiced = d.speak(ctx, r.Voice.Transcription)
		if !voiced && failure == nil {
			status, failure = events.ActionFailed, fmt.Errorf("voice reply was not played")
		}
	}

	d.emitter.ActionExecuted(turnID, action.Name, status, failure)
	return voiced
}

func (d *Dispatcher) sendText(ctx context.Context, text string) error {
	if d.text == nil {
		return fmt.Errorf("no text channel bound")
	}
	return d.text.SendText(ctx, text)
}

// notice extracts the spoken notice of an informational action.
func (d *Dispatcher) notice(action agent.Action) (string, bool) {
	path, ok := d.notices[action.Name]
	if !ok {
		return "", false
	}
	var data any
	if err := json.Unmarshal(action.Args, &data); err != nil {
		return "", false
	}
	v, err := path.Search(data)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// speak synthesizes text and plays it, replacing the current response.
func (d *Dispatcher) speak(ctx context.Context, text string) bool {
	audio, err := d.speech.Synthesize(ctx, text, d.synthesis)
	if err != nil {
		logger.WarnContext(ctx, "speech synthesis failed", "error", err)
		return false
	}
	if audio == nil {
		return false
	}
	if d.isClosed() {
		_ = audio.Close()
		return false
	}
	if err := d.playback.Play(audio); err != nil {
		logger.WarnContext(ctx, "playback rejected response", "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) apologize(ctx context.Context) bool {
	if d.apology == "" || d.isClosed() || !d.limiter.Allow() {
		return false
	}
	return d.speak(ctx, d.apology)
}

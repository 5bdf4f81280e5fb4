package playback

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// DefaultGracePeriod is how long a focal speaker must keep talking over
// playback before it pauses.
const DefaultGracePeriod = 750 * time.Millisecond

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithGracePeriod overrides the interrupt grace period.
func WithGracePeriod(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.grace = d
	}
}

// WithEmitter publishes interrupt and playback events.
func WithEmitter(e *events.Emitter) ControllerOption {
	return func(c *Controller) {
		c.emitter = e
	}
}

type interrupt struct {
	timer         *time.Timer
	startedAt     time.Time
	stillSpeaking bool
	fired         bool
}

// Controller is the sole mutator of playback state. It runs the interrupt
// protocol: a focal speaker talking over playback pauses it once the grace
// period elapses with the speaker still talking, and playback resumes if
// that speech transcribes to nothing.
type Controller struct {
	player  *Player
	focal   *FocalSet
	grace   time.Duration
	emitter *events.Emitter

	mu         sync.Mutex
	interrupts map[string]*interrupt
	pausedBy   string
	confirmed  bool
	closed     bool

	unsubscribe func()
}

// NewController wraps player. focal decides which speakers may interrupt.
func NewController(player *Player, focal *FocalSet, opts ...ControllerOption) *Controller {
	c := &Controller{
		player:     player,
		focal:      focal,
		grace:      DefaultGracePeriod,
		interrupts: make(map[string]*interrupt),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = player.OnStateChange(c.onPlayerState)
	return c
}

// State returns the player state.
func (c *Controller) State() State {
	return c.player.State()
}

// OnStateChange registers fn for player transitions.
func (c *Controller) OnStateChange(fn func(StateChange)) (unsubscribe func()) {
	return c.player.OnStateChange(fn)
}

// Play starts src, replacing any current response. Outstanding interrupts
// belong to the replaced response and are dropped.
func (c *Controller) Play(src io.ReadCloser) error {
	c.mu.Lock()
	superseded := c.resetLocked()
	c.mu.Unlock()
	c.reportSuperseded(superseded)

	return c.player.Play(src)
}

// Resume continues paused playback.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.player.Resume() {
		return false
	}
	c.pausedBy = ""
	c.confirmed = false
	return true
}

// AcceptsTurns reports whether a new turn may be handed to the agent: the
// player is Idle, or it is Paused by an interrupt whose speech was
// confirmed. A pause still awaiting its transcription keeps turns held.
func (c *Controller) AcceptsTurns() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.player.State() {
	case Idle:
		return true
	case Paused:
		return c.pausedBy != "" && c.confirmed
	default:
		return false
	}
}

// PausedFor reports whether playback is paused by an interrupt from one of
// speakers.
func (c *Controller) PausedFor(speakers []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedBy != "" && c.player.State() == Paused && slices.Contains(speakers, c.pausedBy)
}

// OnSpeechStart starts the grace timer when a focal speaker talks over
// playback. A new burst from the same speaker supersedes the previous one.
func (c *Controller) OnSpeechStart(speakerID string) {
	if c.player.State() != Playing || !c.focal.Contains(speakerID) {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var superseded bool
	if prev, ok := c.interrupts[speakerID]; ok {
		prev.timer.Stop()
		superseded = true
	}
	rec := &interrupt{startedAt: time.Now(), stillSpeaking: true}
	rec.timer = time.AfterFunc(c.grace, func() { c.expire(speakerID, rec) })
	c.interrupts[speakerID] = rec
	c.mu.Unlock()

	if superseded {
		c.emitter.InterruptResolved(speakerID, events.InterruptSuperseded)
	}
	logger.Debug("interrupt grace started", "speaker_id", speakerID, "grace", c.grace)
	c.emitter.InterruptStarted(speakerID)
}

// OnSpeechEnd clears the still-speaking flag of a pending interrupt.
func (c *Controller) OnSpeechEnd(speakerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.interrupts[speakerID]; ok && !rec.fired {
		rec.stillSpeaking = false
	}
}

func (c *Controller) expire(speakerID string, rec *interrupt) {
	c.mu.Lock()
	if c.interrupts[speakerID] != rec {
		c.mu.Unlock()
		return
	}
	rec.fired = true

	outcome := events.InterruptPaused
	switch {
	case !rec.stillSpeaking:
		delete(c.interrupts, speakerID)
		outcome = events.InterruptIgnored
	case c.player.Pause():
		c.pausedBy = speakerID
	default:
		// Playback ended or was paused by someone else meanwhile.
		delete(c.interrupts, speakerID)
		outcome = events.InterruptIgnored
	}
	c.mu.Unlock()

	if outcome == events.InterruptPaused {
		logger.Info("playback paused by interrupt", "speaker_id", speakerID)
	}
	c.emitter.InterruptResolved(speakerID, outcome)
}

// ResolveInterrupt settles a speaker's interrupt once the segment that
// ended at endedAt has been transcribed. Segments that ended before the
// interrupt began are ignored. Noise resumes playback if this speaker
// caused the pause; real speech leaves it paused.
func (c *Controller) ResolveInterrupt(speakerID string, endedAt time.Time, hasSpeech bool) {
	c.mu.Lock()
	rec, ok := c.interrupts[speakerID]
	if !ok || rec.startedAt.After(endedAt) {
		c.mu.Unlock()
		return
	}
	delete(c.interrupts, speakerID)
	rec.timer.Stop()

	var outcome events.InterruptOutcome
	switch {
	case !rec.fired:
		outcome = events.InterruptIgnored
	case hasSpeech:
		if c.pausedBy == speakerID {
			c.confirmed = true
		}
		outcome = events.InterruptConfirmed
	case c.pausedBy == speakerID && c.player.Resume():
		c.pausedBy = ""
		outcome = events.InterruptResumed
	default:
		outcome = events.InterruptIgnored
	}
	c.mu.Unlock()

	switch outcome {
	case events.InterruptResumed:
		logger.Info("interrupt was noise, playback resumed", "speaker_id", speakerID)
	case events.InterruptConfirmed:
		logger.Info("interrupt confirmed, playback stays paused", "speaker_id", speakerID)
	}
	c.emitter.InterruptResolved(speakerID, outcome)
}

// Close drops pending interrupts and stops playback.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.resetLocked()
	c.mu.Unlock()
	c.unsubscribe()
	c.player.Stop()
}

func (c *Controller) onPlayerState(change StateChange) {
	c.emitter.PlaybackStateChanged(change.From.String(), change.To.String())
	if change.To != Idle {
		return
	}
	c.mu.Lock()
	superseded := c.resetLocked()
	c.mu.Unlock()
	c.reportSuperseded(superseded)
}

// resetLocked must be called with c.mu held. It returns the speakers whose
// interrupts were dropped.
func (c *Controller) resetLocked() []string {
	var dropped []string
	for id, rec := range c.interrupts {
		rec.timer.Stop()
		dropped = append(dropped, id)
	}
	clear(c.interrupts)
	c.pausedBy = ""
	c.confirmed = false
	return dropped
}

func (c *Controller) reportSuperseded(speakers []string) {
	for _, id := range speakers {
		c.emitter.InterruptResolved(id, events.InterruptSuperseded)
	}
}

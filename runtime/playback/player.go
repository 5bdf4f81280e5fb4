// Package playback owns the single outgoing audio stream of a session and
// decides how it reacts to speakers talking over it.
package playback

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

// DefaultFrameDuration is the pacing interval of outgoing audio.
const DefaultFrameDuration = 20 * time.Millisecond

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("player closed")

// State is the player state.
type State int

// Player states.
const (
	Idle State = iota
	Playing
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateChange is a player transition.
type StateChange struct {
	From State
	To   State
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithFrameDuration overrides the frame pacing interval.
func WithFrameDuration(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.frameDur = d
	}
}

// Player paces a raw PCM16 source into fixed-size frames on an AudioSink.
// State change notifications are delivered in order on a dedicated
// goroutine, never while the player lock is held.
type Player struct {
	sink     transport.AudioSink
	frameDur time.Duration
	format   audio.Format

	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	src    io.ReadCloser
	gen    uint64
	closed bool
	done   chan struct{}

	qmu   sync.Mutex
	qcond *sync.Cond
	queue []StateChange
	qdone bool

	listeners transport.Listeners[StateChange]
	wg        sync.WaitGroup
}

// NewPlayer starts a player writing to sink in the sink's output format.
func NewPlayer(sink transport.AudioSink, opts ...PlayerOption) *Player {
	p := &Player{
		sink:     sink,
		frameDur: DefaultFrameDuration,
		format:   sink.OutputFormat(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)
	p.qcond = sync.NewCond(&p.qmu)

	p.wg.Add(2)
	go p.pump()
	go p.notifier()
	return p
}

// OnStateChange registers fn for state transitions.
func (p *Player) OnStateChange(fn func(StateChange)) (unsubscribe func()) {
	return p.listeners.Add(fn)
}

// State returns the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Play starts src, replacing whatever was playing or paused. The player
// takes ownership of src and closes it when done.
func (p *Player) Play(src io.ReadCloser) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = src.Close()
		return ErrClosed
	}
	old := p.src
	p.src = src
	p.gen++
	p.setStateLocked(Playing)
	p.mu.Unlock()
	p.cond.Broadcast()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Pause pauses playback. It reports false unless the player was Playing.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing {
		return false
	}
	p.setStateLocked(Paused)
	return true
}

// Resume continues paused playback. It reports false unless the player was
// Paused.
func (p *Player) Resume() bool {
	p.mu.Lock()
	if p.state != Paused {
		p.mu.Unlock()
		return false
	}
	p.setStateLocked(Playing)
	p.mu.Unlock()
	p.cond.Broadcast()
	return true
}

// Stop discards the current source and goes Idle.
func (p *Player) Stop() {
	p.mu.Lock()
	src := p.src
	p.src = nil
	p.gen++
	p.setStateLocked(Idle)
	p.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
}

// Close stops playback and releases the goroutines. Pending notifications
// are delivered before Close returns.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	src := p.src
	p.src = nil
	p.gen++
	p.setStateLocked(Idle)
	close(p.done)
	p.mu.Unlock()
	p.cond.Broadcast()

	if src != nil {
		_ = src.Close()
	}

	p.qmu.Lock()
	p.qdone = true
	p.qmu.Unlock()
	p.qcond.Broadcast()

	p.wg.Wait()
}

// setStateLocked must be called with p.mu held.
func (p *Player) setStateLocked(to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to

	p.qmu.Lock()
	p.queue = append(p.queue, StateChange{From: from, To: to})
	p.qmu.Unlock()
	p.qcond.Signal()
}

func (p *Player) notifier() {
	defer p.wg.Done()
	for {
		p.qmu.Lock()
		for len(p.queue) == 0 && !p.qdone {
			p.qcond.Wait()
		}
		if len(p.queue) == 0 {
			p.qmu.Unlock()
			return
		}
		batch := p.queue
		p.queue = nil
		p.qmu.Unlock()

		for _, change := range batch {
			p.listeners.Emit(change)
		}
	}
}

func (p *Player) pump() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.frameDur)
	defer ticker.Stop()

	frame := make([]byte, p.format.FrameBytes(p.frameDur))
	var held bool
	var heldGen uint64

	for {
		p.mu.Lock()
		for !p.closed && p.state != Playing {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		src, gen := p.src, p.gen
		p.mu.Unlock()

		if !held || heldGen != gen {
			n, err := io.ReadFull(src, frame)
			if n == 0 {
				p.finish(gen, err)
				continue
			}
			clear(frame[n:])
			held, heldGen = true, gen
			if err != nil {
				// Short final frame: play it, then the next read ends the source.
				logger.Debug("playback source drained", "bytes", n)
			}
		}

		p.mu.Lock()
		current := p.gen == heldGen
		playing := p.state == Playing
		p.mu.Unlock()
		if !current {
			held = false
			continue
		}
		if !playing {
			continue
		}

		if err := p.sink.WriteFrame(frame); err != nil {
			logger.Warn("audio sink rejected frame", "error", err)
		}
		held = false

		select {
		case <-ticker.C:
		case <-p.done:
			return
		}
	}
}

// finish ends the source of generation gen.
func (p *Player) finish(gen uint64, err error) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	src := p.src
	p.src = nil
	p.setStateLocked(Idle)
	p.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		logger.Warn("playback source failed", "error", err)
	}
}

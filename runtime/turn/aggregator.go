package turn

import (
	"context"
	"sync"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// Dispatcher handles a sealed turn. Dispatch blocks until the response to
// the turn has been fully handled.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *Turn)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, t *Turn)

// Dispatch calls f(ctx, t).
func (f DispatcherFunc) Dispatch(ctx context.Context, t *Turn) {
	f(ctx, t)
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithEmitter publishes turn.sealed events.
func WithEmitter(e *events.Emitter) AggregatorOption {
	return func(a *Aggregator) {
		a.emitter = e
	}
}

// WithContext sets the context passed to the dispatcher.
func WithContext(ctx context.Context) AggregatorOption {
	return func(a *Aggregator) {
		a.ctx = ctx
	}
}

// WithGate sets the seal gate. open is consulted under the aggregator lock
// on every seal attempt, so it must report live state and must not call back
// into the Aggregator. Without a gate sealing is always allowed.
func WithGate(open func() bool) AggregatorOption {
	return func(a *Aggregator) {
		a.gate = open
	}
}

// Aggregator buffers transcriptions into a pending turn and seals it when
// the gate is open, no turn is processing and the pending turn is
// non-empty. At most one turn is processing at any time; transcriptions
// that arrive meanwhile stay pending.
type Aggregator struct {
	dispatcher Dispatcher
	emitter    *events.Emitter
	ctx        context.Context
	gate       func() bool

	mu         sync.Mutex
	pending    *Turn
	processing *Turn
	closed     bool
	wg         sync.WaitGroup
}

// NewAggregator creates an Aggregator that hands sealed turns to d.
func NewAggregator(d Dispatcher, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		dispatcher: d,
		ctx:        context.Background(),
		pending:    New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add appends a transcription to the pending turn and re-evaluates the seal
// condition.
func (a *Aggregator) Add(speakerID, username, text string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending.Append(speakerID, username, text)
	a.mu.Unlock()

	a.Seal()
}

// Seal moves the pending turn to processing and dispatches it if the seal
// condition holds. It reports whether a turn was dispatched. Sealing an
// empty pending turn is a no-op. Callers re-run Seal whenever the gate may
// have opened.
func (a *Aggregator) Seal() bool {
	a.mu.Lock()
	if a.closed || a.processing != nil || a.pending.Empty() || (a.gate != nil && !a.gate()) {
		a.mu.Unlock()
		return false
	}
	t := a.pending
	a.processing = t
	a.pending = New()
	a.wg.Add(1)
	a.mu.Unlock()

	logger.Info("turn sealed", "turn_id", t.ID, "speakers", t.Speakers(), "chars", t.Chars())
	a.emitter.TurnSealed(t.ID, t.Speakers(), t.Chars())

	go func() {
		defer a.wg.Done()
		start := time.Now()
		a.dispatcher.Dispatch(logger.WithTurnID(a.ctx, t.ID), t.Clone())
		logger.Debug("turn dispatched", "turn_id", t.ID, "duration", time.Since(start))
		a.complete(t)
	}()
	return true
}

func (a *Aggregator) complete(t *Turn) {
	a.mu.Lock()
	if a.processing == t {
		a.processing = nil
	}
	a.mu.Unlock()

	a.Seal()
}

// Pending returns a copy of the pending turn.
func (a *Aggregator) Pending() *Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.Clone()
}

// Processing returns a copy of the processing turn, or nil.
func (a *Aggregator) Processing() *Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.processing == nil {
		return nil
	}
	return a.processing.Clone()
}

// Close stops sealing. A turn already dispatching is left to finish.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// Wait blocks until no dispatch is running.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
)

// Span names.
const (
	SpanSession   = "llmvc.session"
	SpanTurn      = "llmvc.turn"
	SpanInterrupt = "llmvc.interrupt"
)

type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a completion that arrived before its start. The event
// bus delivers each Publish on its own goroutine, so ends can race starts.
type pendingEnd struct {
	errMsg string // empty means success
	at     time.Time
	attrs  []attribute.KeyValue
}

// OTelEventListener turns session events into spans: one root span per
// session, a child span per dispatched turn and per interrupt. Other events
// become span events. It is safe for concurrent use.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	inflight    map[string]*spanEntry  // "session:<id>", "turn:<id>", "interrupt:<session>:<speaker>"
	pendingEnds map[string]*pendingEnd // completions delivered before their start
}

// NewOTelEventListener creates a listener that records spans with tracer.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// OnEvent handles one event. It can be passed to EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	switch data := evt.Data.(type) {
	case events.SessionStartedData:
		l.startSpan(context.Background(), sessionKey(evt.SessionID), SpanSession, trace.SpanKindServer, evt.Timestamp,
			attribute.String("session.id", evt.SessionID),
			attribute.String("connection.id", evt.ConnectionID),
			attribute.Int64("session.ready_wait_ms", data.ReadyWait.Milliseconds()),
		)
	case events.SessionEndedData:
		l.endSpan(sessionKey(evt.SessionID), "", evt.Timestamp,
			attribute.String("session.end_reason", data.Reason),
			attribute.Int64("session.duration_ms", data.Duration.Milliseconds()),
		)
	case events.TurnSealedData:
		l.startSpan(l.sessionCtx(evt.SessionID), turnKey(data.TurnID), SpanTurn, trace.SpanKindInternal, evt.Timestamp,
			attribute.String("turn.id", data.TurnID),
			attribute.StringSlice("turn.speakers", data.Speakers),
			attribute.Int("turn.chars", data.Chars),
		)
	case events.TurnCompletedData:
		l.endSpan(turnKey(data.TurnID), "", evt.Timestamp,
			attribute.Int("turn.actions", data.Actions),
			attribute.Bool("turn.voiced", data.Voiced),
			attribute.Int64("turn.duration_ms", data.Duration.Milliseconds()),
		)
	case events.TurnFailedData:
		attrs := []attribute.KeyValue{attribute.Int64("turn.duration_ms", data.Duration.Milliseconds())}
		if data.Component != "" {
			attrs = append(attrs, attribute.String("error.component", data.Component))
		}
		l.endSpan(turnKey(data.TurnID), data.Error, evt.Timestamp, attrs...)
	case events.InterruptStartedData:
		l.startSpan(l.sessionCtx(evt.SessionID), interruptKey(evt.SessionID, data.SpeakerID), SpanInterrupt,
			trace.SpanKindInternal, evt.Timestamp,
			attribute.String("speaker.id", data.SpeakerID),
		)
	case events.InterruptResolvedData:
		l.resolveInterrupt(evt, data)
	case events.ActionExecutedData:
		attrs := []attribute.KeyValue{
			attribute.String("action.name", data.Name),
			attribute.String("action.status", string(data.Status)),
		}
		if data.Error != "" {
			attrs = append(attrs, attribute.String("action.error", data.Error))
		}
		l.addEvent(evt, turnKey(data.TurnID), "action", attrs...)
	case events.SegmentResolvedData:
		l.addEvent(evt, "", "segment",
			attribute.String("speaker.id", data.SpeakerID),
			attribute.String("segment.outcome", string(data.Outcome)),
			attribute.Int64("segment.audio_ms", data.Duration.Milliseconds()),
			attribute.Int64("segment.stt_ms", data.STTLatency.Milliseconds()),
		)
	case events.PlaybackStateData:
		l.addEvent(evt, "", "playback", attribute.String("from", data.From), attribute.String("to", data.To))
	case events.ConnectionStateData:
		l.addEvent(evt, "", "connection", attribute.String("from", data.From), attribute.String("to", data.To))
	}
}

// Paused is an intermediate state of an interrupt: it is recorded as an
// event and the span stays open until the interrupt resumes or confirms.
func (l *OTelEventListener) resolveInterrupt(evt *events.Event, data events.InterruptResolvedData) {
	key := interruptKey(evt.SessionID, data.SpeakerID)
	if data.Outcome == events.InterruptPaused {
		l.addEvent(evt, key, "paused")
		return
	}
	l.endSpan(key, "", evt.Timestamp, attribute.String("interrupt.outcome", string(data.Outcome)))
}

func sessionKey(id string) string { return "session:" + id }
func turnKey(id string) string    { return "turn:" + id }

func interruptKey(sessionID, speakerID string) string {
	return "interrupt:" + sessionID + ":" + speakerID
}

// sessionCtx returns the context of the session root span, or Background
// when the session is unknown.
func (l *OTelEventListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.inflight[sessionKey(sessionID)]; ok {
		return e.ctx
	}
	return context.Background()
}

func spanTime(t time.Time) []trace.SpanEndOption {
	if t.IsZero() {
		return nil
	}
	return []trace.SpanEndOption{trace.WithTimestamp(t)}
}

// startSpan starts a span and stores it under key. A completion already
// buffered for key ends the span immediately.
func (l *OTelEventListener) startSpan(
	parent context.Context, key, name string, kind trace.SpanKind, at time.Time, attrs ...attribute.KeyValue,
) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(kind), trace.WithAttributes(attrs...)}
	if !at.IsZero() {
		opts = append(opts, trace.WithTimestamp(at))
	}
	ctx, span := l.tracer.Start(parent, name, opts...)

	l.mu.Lock()
	pe, pending := l.pendingEnds[key]
	if pending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if pending {
		finish(span, pe.errMsg, pe.at, pe.attrs)
	}
}

// endSpan ends the span stored under key, or buffers the completion when
// the start has not been seen yet. A non-empty errMsg marks the span failed.
func (l *OTelEventListener) endSpan(key, errMsg string, at time.Time, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, at: at, attrs: attrs}
	}
	l.mu.Unlock()

	if ok {
		finish(entry.span, errMsg, at, attrs)
	}
}

func finish(span trace.Span, errMsg string, at time.Time, attrs []attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(spanTime(at)...)
}

// addEvent records a span event on the span under key, falling back to the
// session root span.
func (l *OTelEventListener) addEvent(evt *events.Event, key, name string, attrs ...attribute.KeyValue) {
	opts := []trace.EventOption{trace.WithAttributes(attrs...)}
	if !evt.Timestamp.IsZero() {
		opts = append(opts, trace.WithTimestamp(evt.Timestamp))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.inflight[key]; ok && key != "" {
		e.span.AddEvent(name, opts...)
		return
	}
	if e, ok := l.inflight[sessionKey(evt.SessionID)]; ok {
		e.span.AddEvent(name, opts...)
	}
}

// Flush ends every open span. Used at shutdown so that sessions still
// running are exported.
func (l *OTelEventListener) Flush() {
	l.mu.Lock()
	open := l.inflight
	l.inflight = make(map[string]*spanEntry)
	l.pendingEnds = make(map[string]*pendingEnd)
	l.mu.Unlock()

	for _, e := range open {
		e.span.SetStatus(codes.Error, "shutdown")
		e.span.End()
	}
}

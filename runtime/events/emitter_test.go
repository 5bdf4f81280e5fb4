package events

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

func collect(bus *EventBus) (func() []*Event, func()) {
	var mu sync.Mutex
	var got []*Event
	unsub := bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return func() []*Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*Event(nil), got...)
	}, unsub
}

func TestEmitterStampsSessionMetadata(t *testing.T) {
	bus := NewEventBus()
	events, unsub := collect(bus)
	defer unsub()

	em := NewEmitter(bus, "sess-1", "conn-1")
	em.TranscriptionReady("u1", "hello")
	em.TurnFailed("t1", errors.New("agent down"), time.Second)
	em.ActionExecuted("t1", "reply", ActionSkipped, nil)
	bus.Close()

	got := events()
	require.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, "sess-1", e.SessionID)
		assert.Equal(t, "conn-1", e.ConnectionID)
		assert.False(t, e.Timestamp.IsZero())
	}

	byType := map[EventType]EventData{}
	for _, e := range got {
		byType[e.Type] = e.Data
	}
	assert.Equal(t, TranscriptionReadyData{SpeakerID: "u1", Text: "hello"}, byType[EventTranscriptionReady])
	assert.Equal(t, "agent down", byType[EventTurnFailed].(TurnFailedData).Error)
	assert.Empty(t, byType[EventTurnFailed].(TurnFailedData).Component)
	assert.Equal(t, ActionSkipped, byType[EventActionExecuted].(ActionExecutedData).Status)
}

func TestEmitter_TurnFailedComponent(t *testing.T) {
	bus := NewEventBus()
	got := make(chan TurnFailedData, 1)
	bus.Subscribe(EventTurnFailed, func(e *Event) { got <- e.Data.(TurnFailedData) })

	cause := pkgerrors.New("agent", "Invoke", errors.New("status 429"))
	NewEmitter(bus, "s1", "c1").TurnFailed("t1", fmt.Errorf("dispatch: %w", cause), time.Second)
	bus.Close()

	data := <-got
	assert.Equal(t, "agent", data.Component)
	assert.Equal(t, "dispatch: [agent] Invoke: status 429", data.Error)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var em *Emitter
	em.SpeechStarted("u1")
	em.InterruptResolved("u1", InterruptResumed)

	NewEmitter(nil, "s", "c").TurnSealed("t", nil, 0)
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	original := logger.DefaultLogger
	logger.DefaultLogger = slog.New(logger.NewContextHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer func() { logger.DefaultLogger = original }()

	listen := LogListener()
	listen(&Event{Type: EventTurnFailed, SessionID: "s1", Data: TurnFailedData{TurnID: "t1", Error: "boom"}})
	listen(&Event{Type: EventInterruptResolved, Data: InterruptResolvedData{SpeakerID: "u2", Outcome: InterruptPaused}})

	out := buf.String()
	for _, want := range []string{"level=WARN", "session_id=s1", "turn_id=t1", "error=boom", "outcome=paused"} {
		assert.True(t, strings.Contains(out, want), "missing %q in %s", want, out)
	}
}

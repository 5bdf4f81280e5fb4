package events

import (
	"time"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
)

// Emitter provides helpers for publishing session events with shared metadata.
// A nil Emitter, or one without a bus, silently drops events.
type Emitter struct {
	bus          *EventBus
	sessionID    string
	connectionID string
}

// NewEmitter creates a new event emitter.
func NewEmitter(bus *EventBus, sessionID, connectionID string) *Emitter {
	return &Emitter{
		bus:          bus,
		sessionID:    sessionID,
		connectionID: connectionID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:         eventType,
		Timestamp:    time.Now(),
		SessionID:    e.sessionID,
		ConnectionID: e.connectionID,
		Data:         data,
	})
}

// SessionStarted emits the session.started event.
func (e *Emitter) SessionStarted(readyWait time.Duration) {
	e.emit(EventSessionStarted, SessionStartedData{ReadyWait: readyWait})
}

// SessionEnded emits the session.ended event.
func (e *Emitter) SessionEnded(reason string, duration time.Duration) {
	e.emit(EventSessionEnded, SessionEndedData{Reason: reason, Duration: duration})
}

// ConnectionStateChanged emits the connection.state_changed event.
func (e *Emitter) ConnectionStateChanged(from, to string) {
	e.emit(EventConnectionStateChanged, ConnectionStateData{From: from, To: to})
}

// SpeechStarted emits the speech.started event.
func (e *Emitter) SpeechStarted(speakerID string) {
	e.emit(EventSpeechStarted, SpeechData{SpeakerID: speakerID})
}

// SpeechEnded emits the speech.ended event.
func (e *Emitter) SpeechEnded(speakerID string) {
	e.emit(EventSpeechEnded, SpeechData{SpeakerID: speakerID})
}

// SegmentResolved emits the segment.resolved event.
func (e *Emitter) SegmentResolved(data *SegmentResolvedData) {
	e.emit(EventSegmentResolved, *data)
}

// TranscriptionReady emits the transcription.ready event.
func (e *Emitter) TranscriptionReady(speakerID, text string) {
	e.emit(EventTranscriptionReady, TranscriptionReadyData{SpeakerID: speakerID, Text: text})
}

// TurnSealed emits the turn.sealed event.
func (e *Emitter) TurnSealed(turnID string, speakers []string, chars int) {
	e.emit(EventTurnSealed, TurnSealedData{TurnID: turnID, Speakers: speakers, Chars: chars})
}

// TurnCompleted emits the turn.completed event.
func (e *Emitter) TurnCompleted(turnID string, actions int, voiced bool, duration time.Duration) {
	e.emit(EventTurnCompleted, TurnCompletedData{
		TurnID:   turnID,
		Actions:  actions,
		Voiced:   voiced,
		Duration: duration,
	})
}

// TurnFailed emits the turn.failed event.
func (e *Emitter) TurnFailed(turnID string, err error, duration time.Duration) {
	e.emit(EventTurnFailed, TurnFailedData{
		TurnID:    turnID,
		Error:     errString(err),
		Component: pkgerrors.ComponentOf(err),
		Duration:  duration,
	})
}

// PlaybackStateChanged emits the playback.state_changed event.
func (e *Emitter) PlaybackStateChanged(from, to string) {
	e.emit(EventPlaybackStateChanged, PlaybackStateData{From: from, To: to})
}

// InterruptStarted emits the interrupt.started event.
func (e *Emitter) InterruptStarted(speakerID string) {
	e.emit(EventInterruptStarted, InterruptStartedData{SpeakerID: speakerID})
}

// InterruptResolved emits the interrupt.resolved event.
func (e *Emitter) InterruptResolved(speakerID string, outcome InterruptOutcome) {
	e.emit(EventInterruptResolved, InterruptResolvedData{SpeakerID: speakerID, Outcome: outcome})
}

// ActionExecuted emits the action.executed event.
func (e *Emitter) ActionExecuted(turnID, name string, status ActionStatus, err error) {
	e.emit(EventActionExecuted, ActionExecutedData{
		TurnID: turnID,
		Name:   name,
		Status: status,
		Error:  errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

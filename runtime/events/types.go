package events

import (
	"time"
)

// EventType identifies the type of event emitted by a voice session.
type EventType string

const (
	// EventSessionStarted marks a session bound to a ready connection.
	EventSessionStarted EventType = "session.started"
	// EventSessionEnded marks session teardown.
	EventSessionEnded EventType = "session.ended"

	// EventConnectionStateChanged marks a transport state transition.
	EventConnectionStateChanged EventType = "connection.state_changed"

	// EventSpeechStarted marks a participant starting to speak.
	EventSpeechStarted EventType = "speech.started"
	// EventSpeechEnded marks a participant going quiet.
	EventSpeechEnded EventType = "speech.ended"

	// EventSegmentResolved marks a segment whose transcription finished, failed or was empty.
	EventSegmentResolved EventType = "segment.resolved"
	// EventTranscriptionReady marks a non-empty transcription entering the turn.
	EventTranscriptionReady EventType = "transcription.ready"

	// EventTurnSealed marks a pending turn moving to processing.
	EventTurnSealed EventType = "turn.sealed"
	// EventTurnCompleted marks a turn whose agent response was fully handled.
	EventTurnCompleted EventType = "turn.completed"
	// EventTurnFailed marks a turn discarded because the agent failed.
	EventTurnFailed EventType = "turn.failed"

	// EventPlaybackStateChanged marks a player state transition.
	EventPlaybackStateChanged EventType = "playback.state_changed"

	// EventInterruptStarted marks a focal speaker talking over playback.
	EventInterruptStarted EventType = "interrupt.started"
	// EventInterruptResolved marks the end of an interrupt's grace handling.
	EventInterruptResolved EventType = "interrupt.resolved"

	// EventActionExecuted marks an agent action handled by the dispatcher.
	EventActionExecuted EventType = "action.executed"
)

// SegmentOutcome classifies a resolved segment.
type SegmentOutcome string

// Segment outcomes.
const (
	SegmentTranscribed SegmentOutcome = "transcribed"
	SegmentEmpty       SegmentOutcome = "empty"
	SegmentFailed      SegmentOutcome = "failed"
)

// InterruptOutcome classifies how an interrupt was resolved.
type InterruptOutcome string

// Interrupt outcomes.
const (
	// InterruptIgnored means the speaker stopped within the grace period.
	InterruptIgnored InterruptOutcome = "ignored"
	// InterruptPaused means the grace period expired with the speaker still talking.
	InterruptPaused InterruptOutcome = "paused"
	// InterruptResumed means the paused speech turned out to be noise.
	InterruptResumed InterruptOutcome = "resumed"
	// InterruptConfirmed means the paused speech produced a transcription.
	InterruptConfirmed InterruptOutcome = "confirmed"
	// InterruptSuperseded means a newer burst or new playback replaced it.
	InterruptSuperseded InterruptOutcome = "superseded"
)

// ActionStatus classifies the handling of an agent action.
type ActionStatus string

// Action statuses.
const (
	ActionOK      ActionStatus = "ok"
	ActionSkipped ActionStatus = "skipped"
	ActionFailed  ActionStatus = "failed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a session event delivered to listeners.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	SessionID    string
	ConnectionID string
	Data         EventData
}

// SessionStartedData contains data for session start events.
type SessionStartedData struct {
	baseEventData
	ReadyWait time.Duration
}

// SessionEndedData contains data for session end events.
type SessionEndedData struct {
	baseEventData
	Reason   string
	Duration time.Duration
}

// ConnectionStateData contains data for connection state events.
type ConnectionStateData struct {
	baseEventData
	From string
	To   string
}

// SpeechData contains data for speech start/end events.
type SpeechData struct {
	baseEventData
	SpeakerID string
}

// SegmentResolvedData contains data for segment resolution events.
type SegmentResolvedData struct {
	baseEventData
	SpeakerID  string
	SegmentID  string
	Bytes      int
	Duration   time.Duration // audio length
	STTLatency time.Duration
	Outcome    SegmentOutcome
	Error      string
}

// TranscriptionReadyData contains data for transcription events.
type TranscriptionReadyData struct {
	baseEventData
	SpeakerID string
	Text      string
}

// TurnSealedData contains data for turn seal events.
type TurnSealedData struct {
	baseEventData
	TurnID   string
	Speakers []string
	Chars    int
}

// TurnCompletedData contains data for completed turns.
type TurnCompletedData struct {
	baseEventData
	TurnID   string
	Actions  int
	Voiced   bool
	Duration time.Duration
}

// TurnFailedData contains data for discarded turns.
type TurnFailedData struct {
	baseEventData
	TurnID string
	Error  string
	// Component names the failing collaborator when the error carries one.
	Component string
	Duration  time.Duration
}

// PlaybackStateData contains data for player state events.
type PlaybackStateData struct {
	baseEventData
	From string
	To   string
}

// InterruptStartedData contains data for interrupt start events.
type InterruptStartedData struct {
	baseEventData
	SpeakerID string
}

// InterruptResolvedData contains data for interrupt resolution events.
type InterruptResolvedData struct {
	baseEventData
	SpeakerID string
	Outcome   InterruptOutcome
}

// ActionExecutedData contains data for dispatcher action events.
type ActionExecutedData struct {
	baseEventData
	TurnID string
	Name   string
	Status ActionStatus
	Error  string
}

type baseEventData struct{}

func (baseEventData) eventData() {}

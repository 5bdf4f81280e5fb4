package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record logged with the context.
const (
	// ContextKeySessionID identifies the voice session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyConnectionID identifies the transport connection.
	ContextKeyConnectionID contextKey = "connection_id"

	// ContextKeySpeakerID identifies the participant being handled.
	ContextKeySpeakerID contextKey = "speaker_id"

	// ContextKeySegmentID identifies an audio segment.
	ContextKeySegmentID contextKey = "segment_id"

	// ContextKeyTurnID identifies a sealed turn.
	ContextKeyTurnID contextKey = "turn_id"

	// ContextKeyModel identifies the agent model.
	ContextKeyModel contextKey = "model"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyConnectionID,
	ContextKeySpeakerID,
	ContextKeySegmentID,
	ContextKeyTurnID,
	ContextKeyModel,
	ContextKeyEnvironment,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithConnectionID returns a new context with the connection ID set.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, ContextKeyConnectionID, connectionID)
}

// WithSpeakerID returns a new context with the speaker ID set.
func WithSpeakerID(ctx context.Context, speakerID string) context.Context {
	return context.WithValue(ctx, ContextKeySpeakerID, speakerID)
}

// WithSegmentID returns a new context with the segment ID set.
func WithSegmentID(ctx context.Context, segmentID string) context.Context {
	return context.WithValue(ctx, ContextKeySegmentID, segmentID)
}

// WithTurnID returns a new context with the turn ID set.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, ContextKeyTurnID, turnID)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID    string
	ConnectionID string
	SpeakerID    string
	SegmentID    string
	TurnID       string
	Model        string
	Environment  string
}

// WithLoggingContext sets every non-empty field of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	for key, value := range fields.values() {
		if value != "" {
			ctx = context.WithValue(ctx, key, value)
		}
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(key contextKey) string {
		s, _ := ctx.Value(key).(string)
		return s
	}
	return LoggingFields{
		SessionID:    get(ContextKeySessionID),
		ConnectionID: get(ContextKeyConnectionID),
		SpeakerID:    get(ContextKeySpeakerID),
		SegmentID:    get(ContextKeySegmentID),
		TurnID:       get(ContextKeyTurnID),
		Model:        get(ContextKeyModel),
		Environment:  get(ContextKeyEnvironment),
	}
}

func (f *LoggingFields) values() map[contextKey]string {
	return map[contextKey]string{
		ContextKeySessionID:    f.SessionID,
		ContextKeyConnectionID: f.ConnectionID,
		ContextKeySpeakerID:    f.SpeakerID,
		ContextKeySegmentID:    f.SegmentID,
		ContextKeyTurnID:       f.TurnID,
		ContextKeyModel:        f.Model,
		ContextKeyEnvironment:  f.Environment,
	}
}

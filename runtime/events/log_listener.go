package events

import (
	"context"
	"log/slog"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// LogListener returns a listener that writes every event to the structured
// logger. State changes and failures log at info/warn, the chatty speech
// events at debug.
func LogListener() Listener {
	return func(e *Event) {
		ctx := logger.WithSessionID(context.Background(), e.SessionID)
		ctx = logger.WithConnectionID(ctx, e.ConnectionID)

		level := slog.LevelInfo
		attrs := []any{"event", string(e.Type)}
		switch d := e.Data.(type) {
		case SpeechData:
			level = slog.LevelDebug
			attrs = append(attrs, "speaker_id", d.SpeakerID)
		case SegmentResolvedData:
			level = slog.LevelDebug
			attrs = append(attrs, "speaker_id", d.SpeakerID, "segment_id", d.SegmentID,
				"outcome", string(d.Outcome), "bytes", d.Bytes, "stt_latency", d.STTLatency)
			if d.Outcome == SegmentFailed {
				level = slog.LevelWarn
				attrs = append(attrs, "error", d.Error)
			}
		case TranscriptionReadyData:
			attrs = append(attrs, "speaker_id", d.SpeakerID, "chars", len(d.Text))
		case TurnSealedData:
			attrs = append(attrs, "turn_id", d.TurnID, "speakers", d.Speakers)
		case TurnCompletedData:
			attrs = append(attrs, "turn_id", d.TurnID, "actions", d.Actions, "voiced", d.Voiced, "duration", d.Duration)
		case TurnFailedData:
			level = slog.LevelWarn
			attrs = append(attrs, "turn_id", d.TurnID, "error", d.Error)
		case PlaybackStateData:
			attrs = append(attrs, "from", d.From, "to", d.To)
		case ConnectionStateData:
			attrs = append(attrs, "from", d.From, "to", d.To)
		case InterruptStartedData:
			attrs = append(attrs, "speaker_id", d.SpeakerID)
		case InterruptResolvedData:
			attrs = append(attrs, "speaker_id", d.SpeakerID, "outcome", string(d.Outcome))
		case ActionExecutedData:
			attrs = append(attrs, "turn_id", d.TurnID, "action", d.Name, "status", string(d.Status))
			if d.Status == ActionFailed {
				level = slog.LevelWarn
				attrs = append(attrs, "error", d.Error)
			}
		case SessionStartedData:
			attrs = append(attrs, "ready_wait", d.ReadyWait)
		case SessionEndedData:
			attrs = append(attrs, "reason", d.Reason, "duration", d.Duration)
		}

		logger.DefaultLogger.Log(ctx, level, "session event", attrs...)
	}
}

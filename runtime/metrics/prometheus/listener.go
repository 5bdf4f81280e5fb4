package prometheus

import (
	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusFailed  = "failed"
)

// MetricsListener records session events as Prometheus metrics.
// Register it with EventBus.SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	switch d := event.Data.(type) {
	case events.SessionStartedData:
		RecordSessionStart()
	case events.SessionEndedData:
		RecordSessionEnd(d.Reason)
	case events.ConnectionStateData:
		RecordConnectionTransition(d.To)
	case events.SegmentResolvedData:
		RecordSegment(string(d.Outcome), d.Duration.Seconds(), d.STTLatency.Seconds())
	case events.TurnSealedData:
		RecordTurnSealed(len(d.Speakers))
	case events.TurnCompletedData:
		RecordDispatch(statusSuccess, d.Voiced, d.Duration.Seconds())
	case events.TurnFailedData:
		RecordDispatch(statusError, false, d.Duration.Seconds())
	case events.InterruptStartedData:
		RecordInterruptStarted()
	case events.InterruptResolvedData:
		RecordInterrupt(string(d.Outcome))
	case events.ActionExecutedData:
		RecordAction(d.Name, string(d.Status))
	case events.PlaybackStateData:
		RecordPlaybackTransition(d.To)
	default:
		// speech and transcription events carry no metrics
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}

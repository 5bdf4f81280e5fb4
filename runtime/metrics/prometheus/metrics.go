// Package prometheus exports voice session events as Prometheus metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "llmvc"

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently bound voice sessions",
		},
	)

	sessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of ended voice sessions",
		},
		[]string{"reason"},
	)

	connectionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Total number of voice connection state transitions",
		},
		[]string{"to"},
	)

	segmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Total number of resolved speech segments",
		},
		[]string{"outcome"}, // transcribed, empty, failed
	)

	segmentAudioSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_audio_seconds",
			Help:      "Wall-clock length of resolved speech segments",
			Buckets:   []float64{.25, .5, 1, 2, 4, 8, 15, 30},
		},
	)

	sttDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_duration_seconds",
			Help:      "Duration of speech-to-text calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15},
		},
		[]string{"status"}, // success, error
	)

	turnsSealedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_sealed_total",
			Help:      "Total number of sealed turns",
		},
	)

	turnSpeakers = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_speakers",
			Help:      "Number of speakers in a sealed turn",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration from agent invocation to the last executed action",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"}, // success, error
	)

	turnsVoicedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_voiced_total",
			Help:      "Total number of completed turns that started new voice",
		},
	)

	interruptsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_started_total",
			Help:      "Total number of focal speakers talking over playback",
		},
	)

	interruptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Total number of resolved interrupts",
		},
		[]string{"outcome"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of agent actions handled",
		},
		[]string{"action", "status"}, // status: ok, skipped, failed
	)

	playbackTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_transitions_total",
			Help:      "Total number of player state transitions",
		},
		[]string{"to"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionsEndedTotal,
		connectionTransitionsTotal,
		segmentsTotal,
		segmentAudioSeconds,
		sttDuration,
		turnsSealedTotal,
		turnSpeakers,
		dispatchDuration,
		turnsVoicedTotal,
		interruptsStartedTotal,
		interruptsTotal,
		actionsTotal,
		playbackTransitionsTotal,
	}
)

// RecordSessionStart records a bound session.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session teardown.
func RecordSessionEnd(reason string) {
	sessionsActive.Dec()
	sessionsEndedTotal.WithLabelValues(reason).Inc()
}

// RecordConnectionTransition records a connection state change.
func RecordConnectionTransition(to string) {
	connectionTransitionsTotal.WithLabelValues(to).Inc()
}

// RecordSegment records a resolved segment. sttSeconds is ignored when no
// transcription was attempted.
func RecordSegment(outcome string, audioSeconds, sttSeconds float64) {
	segmentsTotal.WithLabelValues(outcome).Inc()
	segmentAudioSeconds.Observe(audioSeconds)
	if sttSeconds <= 0 {
		return
	}
	status := statusSuccess
	if outcome == statusFailed {
		status = statusError
	}
	sttDuration.WithLabelValues(status).Observe(sttSeconds)
}

// RecordTurnSealed records a sealed turn.
func RecordTurnSealed(speakers int) {
	turnsSealedTotal.Inc()
	turnSpeakers.Observe(float64(speakers))
}

// RecordDispatch records a finished dispatch.
func RecordDispatch(status string, voiced bool, durationSeconds float64) {
	dispatchDuration.WithLabelValues(status).Observe(durationSeconds)
	if voiced {
		turnsVoicedTotal.Inc()
	}
}

// RecordInterruptStarted records a focal speaker talking over playback.
func RecordInterruptStarted() {
	interruptsStartedTotal.Inc()
}

// RecordInterrupt records a resolved interrupt.
func RecordInterrupt(outcome string) {
	interruptsTotal.WithLabelValues(outcome).Inc()
}

// RecordAction records a handled agent action.
func RecordAction(action, status string) {
	actionsTotal.WithLabelValues(action, status).Inc()
}

// RecordPlaybackTransition records a player state change.
func RecordPlaybackTransition(to string) {
	playbackTransitionsTotal.WithLabelValues(to).Inc()
}

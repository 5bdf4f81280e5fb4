package prometheus

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
)

func emit(l *MetricsListener, data events.EventData) {
	l.Handle(&events.Event{Timestamp: time.Now(), SessionID: "s1", Data: data})
}

func TestRecordSegment(t *testing.T) {
	segmentsTotal.Reset()
	sttDuration.Reset()

	RecordSegment("transcribed", 1.2, 0.4)
	RecordSegment("empty", 0.3, 0)
	RecordSegment("failed", 2, 0.9)

	if got := testutil.ToFloat64(segmentsTotal.WithLabelValues("transcribed")); got != 1 {
		t.Errorf("Expected 1 transcribed segment, got %f", got)
	}
	if got := testutil.CollectAndCount(sttDuration); got != 2 {
		t.Errorf("Expected STT observations for success and error only, got %d series", got)
	}
}

func TestRecordSessionStartEnd(t *testing.T) {
	sessionsActive.Set(0)
	sessionsEndedTotal.Reset()

	RecordSessionStart()
	RecordSessionStart()
	RecordSessionEnd("session closed")

	if got := testutil.ToFloat64(sessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %f", got)
	}
	if got := testutil.ToFloat64(sessionsEndedTotal.WithLabelValues("session closed")); got != 1 {
		t.Errorf("Expected 1 ended session, got %f", got)
	}
}

func TestMetricsListener(t *testing.T) {
	sessionsActive.Set(0)
	interruptsTotal.Reset()
	actionsTotal.Reset()
	playbackTransitionsTotal.Reset()
	dispatchDuration.Reset()
	connectionTransitionsTotal.Reset()

	l := NewMetricsListener()
	sealedBefore := testutil.ToFloat64(turnsSealedTotal)
	voicedBefore := testutil.ToFloat64(turnsVoicedTotal)
	startedBefore := testutil.ToFloat64(interruptsStartedTotal)

	emit(l, events.SessionStartedData{ReadyWait: time.Second})
	emit(l, events.ConnectionStateData{From: "ready", To: "disconnected"})
	emit(l, events.TurnSealedData{TurnID: "t1", Speakers: []string{"u1", "u2"}})
	emit(l, events.TurnCompletedData{TurnID: "t1", Actions: 2, Voiced: true, Duration: time.Second})
	emit(l, events.TurnFailedData{TurnID: "t2", Error: "boom", Duration: time.Second})
	emit(l, events.InterruptStartedData{SpeakerID: "u1"})
	emit(l, events.InterruptResolvedData{SpeakerID: "u1", Outcome: events.InterruptResumed})
	emit(l, events.ActionExecutedData{TurnID: "t1", Name: "reply", Status: events.ActionOK})
	emit(l, events.ActionExecutedData{TurnID: "t1", Name: "reply", Status: events.ActionSkipped})
	emit(l, events.PlaybackStateData{From: "idle", To: "playing"})
	emit(l, events.SpeechData{SpeakerID: "u1"})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"sessions active", testutil.ToFloat64(sessionsActive), 1},
		{"connection transitions", testutil.ToFloat64(connectionTransitionsTotal.WithLabelValues("disconnected")), 1},
		{"turns sealed", testutil.ToFloat64(turnsSealedTotal) - sealedBefore, 1},
		{"turns voiced", testutil.ToFloat64(turnsVoicedTotal) - voicedBefore, 1},
		{"interrupts started", testutil.ToFloat64(interruptsStartedTotal) - startedBefore, 1},
		{"interrupts resumed", testutil.ToFloat64(interruptsTotal.WithLabelValues("resumed")), 1},
		{"reply ok", testutil.ToFloat64(actionsTotal.WithLabelValues("reply", "ok")), 1},
		{"reply skipped", testutil.ToFloat64(actionsTotal.WithLabelValues("reply", "skipped")), 1},
		{"playback playing", testutil.ToFloat64(playbackTransitionsTotal.WithLabelValues("playing")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %f, want %f", c.name, c.got, c.want)
		}
	}
	if got := testutil.CollectAndCount(dispatchDuration); got != 2 {
		t.Errorf("Expected success and error dispatch series, got %d", got)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	sessionsActive.Set(0)
	bus := events.NewEventBus()
	bus.SubscribeAll(NewMetricsListener().Listener())

	events.NewEmitter(bus, "s1", "c1").SessionStarted(time.Millisecond)
	bus.Close()

	if got := testutil.ToFloat64(sessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %f", got)
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	handler := NewExporter(":0", WithRegistry(reg)).Handler()

	for path, want := range map[string]string{"/metrics": "test_counter", "/health": "ok"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		resp := rec.Result()
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), want) {
			t.Errorf("%s: expected body to contain %q", path, want)
		}
	}
}

func histogramSnapshot(t *testing.T, h prometheus.Histogram) (count uint64, sum float64) {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestRecordTurnSealed_SpeakerHistogram(t *testing.T) {
	count, sum := histogramSnapshot(t, turnSpeakers)

	RecordTurnSealed(1)
	RecordTurnSealed(3)

	gotCount, gotSum := histogramSnapshot(t, turnSpeakers)
	if gotCount-count != 2 {
		t.Errorf("Expected 2 observations, got %d", gotCount-count)
	}
	if gotSum-sum != 4 {
		t.Errorf("Expected speaker sum 4, got %f", gotSum-sum)
	}
}

func TestNewExporterRegistersSessionMetrics(t *testing.T) {
	e := NewExporter(":0")
	RecordTurnSealed(1)

	families, err := e.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "llmvc_turns_sealed_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected llmvc_turns_sealed_total to be registered")
	}
}

func TestExporterServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	e := NewExporter("", WithRegistry(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

package segment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport/transporttest"
)

type fakeSTT struct {
	mu    sync.Mutex
	text  string
	err   error
	calls atomic.Int32
	got   []byte
	cfg   stt.TranscriptionConfig
}

func (f *fakeSTT) Name() string               { return "fake" }
func (f *fakeSTT) SupportedFormats() []string { return []string{stt.FormatPCM} }

func (f *fakeSTT) Transcribe(_ context.Context, pcm []byte, cfg stt.TranscriptionConfig) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = pcm
	f.cfg = cfg
	return f.text, f.err
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("segment did not resolve")
		return Result{}
	}
}

func TestSegmenter_TranscribesSegment(t *testing.T) {
	conn := transporttest.NewConn("c1")
	svc := &fakeSTT{text: "  hello there \n"}
	seg := New(conn, svc, DefaultConfig())

	ch, ok := seg.OnSpeechStart("u1")
	require.True(t, ok)
	assert.True(t, seg.Active("u1"))

	conn.Speak("u1", make([]byte, 640))
	conn.StopSpeaking("u1")

	res := await(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, "u1", res.Segment.SpeakerID)
	assert.Equal(t, 640, res.Segment.Bytes)
	assert.NotEmpty(t, res.Segment.ID)
	assert.False(t, res.Segment.EndedAt.Before(res.Segment.StartedAt))
	assert.False(t, seg.Active("u1"))
	assert.Equal(t, stt.DefaultPrompt, svc.cfg.Prompt)
	assert.Equal(t, 16000, svc.cfg.SampleRate)
}

func TestSegmenter_OneOpenSegmentPerSpeaker(t *testing.T) {
	conn := transporttest.NewConn("c1")
	seg := New(conn, &fakeSTT{text: "hi"}, DefaultConfig())

	ch, ok := seg.OnSpeechStart("u1")
	require.True(t, ok)

	_, again := seg.OnSpeechStart("u1")
	assert.False(t, again, "second start while open must be a no-op")
	assert.Equal(t, 1, conn.Subscribes("u1"))

	// Another speaker is independent.
	other, ok := seg.OnSpeechStart("u2")
	require.True(t, ok)

	conn.Speak("u1", make([]byte, 320))
	conn.StopSpeaking("u1")
	await(t, ch)

	// Once the segment ended the speaker can open a new one.
	_, ok = seg.OnSpeechStart("u1")
	assert.True(t, ok)
	assert.Equal(t, 2, conn.Subscribes("u1"))

	conn.StopSpeaking("u2")
	await(t, other)
}

func TestSegmenter_EmptyAudioSkipsSTT(t *testing.T) {
	conn := transporttest.NewConn("c1")
	svc := &fakeSTT{text: "should not be used"}
	seg := New(conn, svc, DefaultConfig())

	ch, _ := seg.OnSpeechStart("u1")
	conn.StopSpeaking("u1")

	res := await(t, ch)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Text)
	assert.Equal(t, int32(0), svc.calls.Load())
}

func TestSegmenter_STTFailureIsNotRetried(t *testing.T) {
	conn := transporttest.NewConn("c1")
	boom := errors.New("stt unavailable")
	svc := &fakeSTT{err: boom}

	bus := events.NewEventBus()
	var outcome atomic.Value
	bus.Subscribe(events.EventSegmentResolved, func(e *events.Event) {
		outcome.Store(e.Data.(events.SegmentResolvedData).Outcome)
	})
	seg := New(conn, svc, DefaultConfig(), WithEmitter(events.NewEmitter(bus, "s1", "c1")))

	ch, _ := seg.OnSpeechStart("u1")
	conn.Speak("u1", make([]byte, 320))
	conn.StopSpeaking("u1")

	res := await(t, ch)
	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, res.Text)
	assert.Equal(t, int32(1), svc.calls.Load())

	bus.Close()
	assert.Equal(t, events.SegmentFailed, outcome.Load())
}

func TestSegmenter_SubscribeFailure(t *testing.T) {
	conn := transporttest.NewConn("c1")
	conn.SubscribeErr = errors.New("no such user")
	seg := New(conn, &fakeSTT{}, DefaultConfig())

	ch, ok := seg.OnSpeechStart("u1")
	require.True(t, ok)
	res := await(t, ch)
	assert.Error(t, res.Err)
	assert.False(t, seg.Active("u1"))
}

func TestSegmenter_MaxDurationCapsAudio(t *testing.T) {
	conn := transporttest.NewConn("c1")
	svc := &fakeSTT{text: "long"}
	cfg := DefaultConfig()
	cfg.MaxDuration = 100 * time.Millisecond
	seg := New(conn, svc, cfg)

	ch, _ := seg.OnSpeechStart("u1")
	// 16kHz mono PCM16 is 32000 B/s, so 100ms is 3200 bytes.
	conn.Speak("u1", make([]byte, 10000))

	res := await(t, ch)
	assert.Equal(t, 3200, res.Segment.Bytes)
	conn.EndStream("u1")
}

func TestSegmenter_Close(t *testing.T) {
	conn := transporttest.NewConn("c1")
	svc := &fakeSTT{text: "late"}
	seg := New(conn, svc, DefaultConfig())

	ch, ok := seg.OnSpeechStart("u1")
	require.True(t, ok)
	seg.Close()

	_, ok = seg.OnSpeechStart("u2")
	assert.False(t, ok)

	// The open segment still completes.
	conn.Speak("u1", make([]byte, 320))
	conn.StopSpeaking("u1")
	res := await(t, ch)
	assert.Equal(t, "late", res.Text)
}

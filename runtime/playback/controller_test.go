package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
)

const testGrace = 40 * time.Millisecond

type controllerFixture struct {
	ctl      *Controller
	player   *Player
	focal    *FocalSet
	outcomes chan events.InterruptOutcome
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	player, _ := newTestPlayer(t)
	focal := NewFocalSet()

	bus := events.NewEventBus()
	outcomes := make(chan events.InterruptOutcome, 16)
	bus.Subscribe(events.EventInterruptResolved, func(e *events.Event) {
		outcomes <- e.Data.(events.InterruptResolvedData).Outcome
	})
	t.Cleanup(bus.Close)

	ctl := NewController(player, focal,
		WithGracePeriod(testGrace),
		WithEmitter(events.NewEmitter(bus, "s1", "c1")),
	)
	require.NoError(t, ctl.Play(&endless{}))
	return &controllerFixture{ctl: ctl, player: player, focal: focal, outcomes: outcomes}
}

func (f *controllerFixture) outcome(t *testing.T) events.InterruptOutcome {
	t.Helper()
	select {
	case o := <-f.outcomes:
		return o
	case <-time.After(time.Second):
		t.Fatal("no interrupt outcome")
		return ""
	}
}

func TestController_NonFocalSpeakerNeverPauses(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	f.ctl.OnSpeechStart("u2")
	time.Sleep(3 * testGrace)

	assert.Equal(t, Playing, f.ctl.State())
}

func TestController_ShortBurstIsIgnored(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	f.ctl.OnSpeechStart("u1")
	time.Sleep(testGrace / 4)
	f.ctl.OnSpeechEnd("u1")

	assert.Equal(t, events.InterruptIgnored, f.outcome(t))
	assert.Equal(t, Playing, f.ctl.State())

	// The burst's segment resolving later has nothing to settle.
	f.ctl.ResolveInterrupt("u1", time.Now(), false)
	assert.Equal(t, Playing, f.ctl.State())
}

func TestController_LongSpeechPausesAndStaysPaused(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	started := time.Now()
	f.ctl.OnSpeechStart("u1")
	assert.Equal(t, events.InterruptPaused, f.outcome(t))
	assert.GreaterOrEqual(t, time.Since(started), testGrace)
	assert.Equal(t, Paused, f.ctl.State())
	assert.True(t, f.ctl.PausedFor([]string{"u1"}))
	assert.False(t, f.ctl.PausedFor([]string{"u2"}))
	assert.False(t, f.ctl.AcceptsTurns(), "unconfirmed pause holds turns")

	f.ctl.OnSpeechEnd("u1")
	f.ctl.ResolveInterrupt("u1", time.Now(), true)
	assert.Equal(t, events.InterruptConfirmed, f.outcome(t))
	assert.Equal(t, Paused, f.ctl.State())
	assert.True(t, f.ctl.AcceptsTurns())

	require.True(t, f.ctl.Resume())
	assert.False(t, f.ctl.AcceptsTurns())
}

func TestController_NoiseResumes(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	assert.False(t, f.ctl.AcceptsTurns())
	f.ctl.OnSpeechStart("u1")
	assert.Equal(t, events.InterruptPaused, f.outcome(t))
	assert.False(t, f.ctl.AcceptsTurns())

	f.ctl.OnSpeechEnd("u1")
	f.ctl.ResolveInterrupt("u1", time.Now(), false)
	assert.Equal(t, events.InterruptResumed, f.outcome(t))
	assert.Equal(t, Playing, f.ctl.State())
	assert.False(t, f.ctl.PausedFor([]string{"u1"}))
	assert.False(t, f.ctl.AcceptsTurns())
}

func TestController_StaleSegmentIgnored(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	before := time.Now().Add(-time.Second)
	f.ctl.OnSpeechStart("u1")
	assert.Equal(t, events.InterruptPaused, f.outcome(t))

	// An earlier segment of the same speaker finishing now must not resume.
	f.ctl.ResolveInterrupt("u1", before, false)
	assert.Equal(t, Paused, f.ctl.State())

	f.ctl.ResolveInterrupt("u1", time.Now(), false)
	assert.Equal(t, events.InterruptResumed, f.outcome(t))
}

func TestController_NewBurstSupersedes(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	f.ctl.OnSpeechStart("u1")
	f.ctl.OnSpeechStart("u1")
	assert.Equal(t, events.InterruptSuperseded, f.outcome(t))
	assert.Equal(t, events.InterruptPaused, f.outcome(t))
}

func TestController_PlayClearsInterrupts(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})

	f.ctl.OnSpeechStart("u1")
	assert.Equal(t, events.InterruptPaused, f.outcome(t))

	require.NoError(t, f.ctl.Play(&endless{}))
	assert.Equal(t, events.InterruptSuperseded, f.outcome(t))
	assert.Equal(t, Playing, f.ctl.State())
	assert.False(t, f.ctl.PausedFor([]string{"u1"}))

	// The old interrupt's segment no longer affects the new response.
	f.ctl.ResolveInterrupt("u1", time.Now(), false)
	assert.Equal(t, Playing, f.ctl.State())
}

func TestController_IdleIgnoresSpeech(t *testing.T) {
	f := newControllerFixture(t)
	f.focal.Replace([]string{"u1"})
	f.player.Stop()

	f.ctl.OnSpeechStart("u1")
	time.Sleep(3 * testGrace)
	assert.Equal(t, Idle, f.ctl.State())
	assert.True(t, f.ctl.AcceptsTurns())
}

func TestController_ResumeAndClose(t *testing.T) {
	f := newControllerFixture(t)
	assert.False(t, f.ctl.Resume())

	f.player.Pause()
	assert.False(t, f.ctl.AcceptsTurns(), "a pause without an interrupt holds turns")
	assert.True(t, f.ctl.Resume())
	assert.Equal(t, Playing, f.ctl.State())

	f.ctl.Close()
	assert.Equal(t, Idle, f.ctl.State())
}

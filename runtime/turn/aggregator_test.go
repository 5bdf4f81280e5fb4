package turn

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures dispatched turns and optionally blocks each dispatch
// until released.
type recorder struct {
	mu       sync.Mutex
	turns    []*Turn
	inflight atomic.Int32
	overlap  atomic.Bool
	gate     chan struct{}
}

func (r *recorder) Dispatch(_ context.Context, t *Turn) {
	if r.inflight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inflight.Add(-1)

	r.mu.Lock()
	r.turns = append(r.turns, t)
	r.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}
}

func (r *recorder) got() []*Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Turn(nil), r.turns...)
}

func TestAggregator_DispatchesWhenIdle(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(rec)

	a.Add("u1", "alice", "hello")
	a.Wait()

	turns := rec.got()
	require.Len(t, turns, 1)
	assert.Equal(t, "hello", turns[0].Text("u1"))
	assert.True(t, a.Pending().Empty())
	assert.Nil(t, a.Processing())
}

func TestAggregator_HoldsWhileGateClosed(t *testing.T) {
	rec := &recorder{}
	var playing atomic.Bool
	a := NewAggregator(rec, WithGate(func() bool { return !playing.Load() }))

	playing.Store(true)
	a.Add("u1", "alice", "first")
	a.Add("u2", "bob", "second")
	assert.Empty(t, rec.got())
	assert.Equal(t, 2, a.Pending().Len())

	playing.Store(false)
	require.True(t, a.Seal())
	a.Wait()

	turns := rec.got()
	require.Len(t, turns, 1)
	assert.Equal(t, []string{"u1", "u2"}, turns[0].Speakers())
}

func TestAggregator_SerialDispatch(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	a := NewAggregator(rec)

	a.Add("u1", "alice", "one")
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, time.Second, time.Millisecond)

	// Arrives while the first turn is processing: stays pending.
	a.Add("u1", "alice", "two")
	a.Add("u2", "bob", "three")
	assert.False(t, a.Seal())
	assert.NotNil(t, a.Processing())
	assert.Equal(t, "two", a.Pending().Text("u1"))

	rec.gate <- struct{}{}
	require.Eventually(t, func() bool { return len(rec.got()) == 2 }, time.Second, time.Millisecond)
	rec.gate <- struct{}{}
	a.Wait()

	turns := rec.got()
	assert.Equal(t, "two", turns[1].Text("u1"))
	assert.Equal(t, "three", turns[1].Text("u2"))
	assert.False(t, rec.overlap.Load(), "dispatches must never overlap")
}

func TestAggregator_EmptySealIsNoop(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(rec)

	assert.False(t, a.Seal())
	a.Wait()
	assert.Empty(t, rec.got())
}

// startsPlayback closes the gate before returning, the way a dispatcher does
// when it starts a voice reply.
type startsPlayback struct {
	recorder
	playing *atomic.Bool
	release chan struct{}
}

func (s *startsPlayback) Dispatch(ctx context.Context, t *Turn) {
	s.recorder.Dispatch(ctx, t)
	<-s.release
	s.playing.Store(true)
}

func TestAggregator_GateReadAtCompletion(t *testing.T) {
	var playing atomic.Bool
	d := &startsPlayback{playing: &playing, release: make(chan struct{})}
	a := NewAggregator(d, WithGate(func() bool { return !playing.Load() }))

	a.Add("u1", "alice", "one")
	require.Eventually(t, func() bool { return len(d.got()) == 1 }, time.Second, time.Millisecond)

	// Pending while the first dispatch runs; the reply starts playing before
	// the dispatch returns, so completion must not seal it.
	a.Add("u2", "bob", "two")
	close(d.release)
	a.Wait()

	assert.Len(t, d.got(), 1)
	assert.Nil(t, a.Processing())
	assert.Equal(t, "two", a.Pending().Text("u2"))

	playing.Store(false)
	require.True(t, a.Seal())
	a.Wait()
	require.Len(t, d.got(), 2)
	assert.Equal(t, []string{"u2"}, d.got()[1].Speakers())
}

func TestAggregator_ManyConcurrentAdds(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(rec)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Add("u1", "alice", string(rune('a'+i%26)))
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool {
		a.Wait()
		return a.Processing() == nil && a.Pending().Empty()
	}, time.Second, time.Millisecond)

	total := 0
	for _, tr := range rec.got() {
		total += len(tr.Text("u1"))/2 + 1
	}
	assert.Equal(t, 50, total)
	assert.False(t, rec.overlap.Load())
}

func TestAggregator_Close(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(rec)
	a.Close()

	a.Add("u1", "alice", "ignored")
	assert.False(t, a.Seal())
	assert.Empty(t, rec.got())
}

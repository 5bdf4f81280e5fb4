package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Resolve(t *testing.T) {
	roster := Static{"u1": {ID: "u1", Username: "alice"}}

	p, err := roster.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	_, err = roster.Resolve(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestCache_ReusesResult(t *testing.T) {
	var calls atomic.Int32
	next := ResolverFunc(func(_ context.Context, id string) (Participant, error) {
		calls.Add(1)
		return Participant{ID: id, Username: "bob", Bot: true}, nil
	})

	c := NewCache(next, time.Minute)
	for range 3 {
		p, err := c.Resolve(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, p.Bot)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())

	c.Forget("u1")
	_, err := c.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("gateway down")
	next := ResolverFunc(func(_ context.Context, _ string) (Participant, error) {
		calls.Add(1)
		return Participant{}, boom
	})

	c := NewCache(next, 0)
	_, err := c.Resolve(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	_, err = c.Resolve(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCache_CoalescesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := ResolverFunc(func(_ context.Context, id string) (Participant, error) {
		calls.Add(1)
		<-release
		return Participant{ID: id}, nil
	})

	c := NewCache(next, time.Minute)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Resolve(context.Background(), "u1")
		}()
	}
	// Give the goroutines time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

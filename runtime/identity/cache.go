package identity

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	// DefaultCacheTTL is how long a resolved participant is reused.
	DefaultCacheTTL = 10 * time.Minute

	cleanupFactor = 2
)

// Cache memoizes a Resolver. Concurrent lookups for the same id share a
// single upstream call. Failed lookups are not cached.
type Cache struct {
	next  Resolver
	store *gocache.Cache
	group singleflight.Group
}

// NewCache wraps next with a TTL cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(next Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		next:  next,
		store: gocache.New(ttl, cleanupFactor*ttl),
	}
}

// Resolve returns a cached participant or fetches it from the wrapped resolver.
func (c *Cache) Resolve(ctx context.Context, id string) (Participant, error) {
	if v, ok := c.store.Get(id); ok {
		return v.(Participant), nil
	}

	v, err, shared := c.group.Do(id, func() (any, error) {
		p, err := c.next.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		c.store.SetDefault(id, p)
		return p, nil
	})
	if err != nil {
		return Participant{}, err
	}
	if shared {
		logger.Debug("identity lookup coalesced", "speaker_id", id)
	}
	return v.(Participant), nil
}

// Forget drops a cached entry, e.g. after a username change.
func (c *Cache) Forget(id string) {
	c.store.Delete(id)
}

// Len returns the number of cached participants.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

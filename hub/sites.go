package hub

import (
	"context"
	"fmt"
	"math"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// hubSite is the site ID of the replica kept by the hub itself. It never generates operations.
const hubSite = 1

// firstClientSite is the first site ID handed to clients.
const firstClientSite = hubSite + 1

// SiteAllocator hands out site IDs that are unique per document.
type SiteAllocator interface {
	Next(ctx context.Context, doc string) (uint32, error)
}

// CounterAllocator allocates site IDs from in-memory counters.
type CounterAllocator struct {
	// last holds the last site allocated per document.
	last *xsync.MapOf[string, uint32]
}

var _ SiteAllocator = (*CounterAllocator)(nil)

func NewCounterAllocator() *CounterAllocator {
	return &CounterAllocator{last: xsync.NewMapOf[string, uint32]()}
}

func (a *CounterAllocator) Next(ctx context.Context, doc string) (uint32, error) {
	var exhausted bool
	site, _ := a.last.Compute(doc, func(last uint32, loaded bool) (uint32, bool) {
		switch {
		case !loaded:
			return firstClientSite, false
		case last == math.MaxUint32:
			exhausted = true
			return last, false
		}
		return last + 1, false
	})
	if exhausted {
		return 0, fmt.Errorf("%w: %s", ErrSitesExhausted, doc)
	}
	return site, nil
}

// RedisAllocator allocates site IDs from a redis counter, shared by every hub connected to the
// same server.
type RedisAllocator struct {
	rdb redis.UniversalClient
}

var _ SiteAllocator = (*RedisAllocator)(nil)

// NewRedisAllocator returns an allocator incrementing the key "woot:<doc>:sites".
func NewRedisAllocator(rdb redis.UniversalClient) *RedisAllocator {
	return &RedisAllocator{rdb: rdb}
}

func (a *RedisAllocator) Next(ctx context.Context, doc string) (uint32, error) {
	n, err := a.rdb.Incr(ctx, "woot:"+doc+":sites").Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", doc, err)
	}
	site := n + hubSite
	if site > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s", ErrSitesExhausted, doc)
	}
	return uint32(site), nil
}

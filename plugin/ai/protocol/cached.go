package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/cache"
	"github.com/hrygo/lifesaver/store"
)

// Cached memoizes successful lookups for a TTL. Failures are never cached.
type Cached struct {
	next  Lookup
	cache *cache.LRU[*store.Procedure]
}

var _ Lookup = (*Cached)(nil)

// NewCached wraps next with an LRU of up to 64 procedures.
func NewCached(next Lookup, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.NewLRU[*store.Procedure](64, ttl)}
}

func (c *Cached) GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error) {
	key := strings.ToLower(strings.TrimSpace(emergencyType))
	if p, ok := c.cache.Get(key); ok {
		return Clone(p), nil
	}
	p, err := c.next.GetProtocol(ctx, emergencyType)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, Clone(p), 0)
	return p, nil
}

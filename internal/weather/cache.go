package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached remembers successful answers per location for ttl, so a tick that
// finds many due tasks on the same parcel asks the provider once.
type Cached struct {
	next  Provider
	cache *expirable.LRU[string, Decision]
}

var _ Provider = (*Cached)(nil)

// NewCached wraps next with an LRU of up to size locations.
func NewCached(next Provider, size int, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: expirable.NewLRU[string, Decision](size, nil, ttl)}
}

// cacheKey rounds to roughly 1 km so neighbouring parcels share an entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

func (c *Cached) Check(ctx context.Context, lat, lon float64) (Decision, error) {
	key := cacheKey(lat, lon)
	if d, ok := c.cache.Get(key); ok {
		return d, nil
	}
	d, err := c.next.Check(ctx, lat, lon)
	if err != nil {
		return d, err
	}
	c.cache.Add(key, d)
	return d, nil
}

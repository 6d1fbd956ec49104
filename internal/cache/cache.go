// Package cache is a time boxed read cache in front of backend reads. Entries
// are removed by key prefix whenever a mutation changes the underlying
// resource.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key prefixes of the cached resource classes.
const (
	CampaignsKey = "campaigns"
	LeadsPrefix  = "leads"
	StatsPrefix  = "stats"
)

// StatsKey is the key of a page of the stats activity feed.
func StatsKey(page, perPage int) string {
	return fmt.Sprintf("stats_activity_%d_%d", page, perPage)
}

// LeadsKey is the key of a leads listing identified by its encoded query.
func LeadsKey(query string) string {
	return "leads_" + query
}

type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	// gens holds the generation of every key that was read. Invalidation
	// increments the generation of the matching keys. Fetches that started
	// in an older generation neither populate the cache nor get joined by
	// newer readers.
	gens  map[string]uint64
	group singleflight.Group
	now   func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: map[string]entry{},
		gens:    map[string]uint64{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the live cached value of key if useCache is true and there
// is one. Otherwise it calls fetch and caches a successful result for ttl.
// Concurrent misses of the same key share a single call to fetch. The
// shared call is not cancelled when one of the callers goes away, each
// caller only stops waiting for it.
func Get[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error), useCache bool) (T, error) {
	var zero T
	c.mu.Lock()
	if useCache {
		if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) < e.ttl {
			if v, ok := e.value.(T); ok {
				c.mu.Unlock()
				return v, nil
			}
		}
	}
	gen := c.gens[key]
	c.gens[key] = gen
	c.mu.Unlock()

	flight := fmt.Sprintf("%s@%d", key, gen)
	if !useCache {
		flight += "!"
	}
	ch := c.group.DoChan(flight, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v, ttl)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, ok := r.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cached value of %s has type %T", key, r.Val)
		}
		return v, nil
	}
}

func (c *Cache) store(key string, gen uint64, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[key] {
		slog.Debug("dropping result of fetch started before invalidation", slog.String("key", key))
		return
	}
	c.entries[key] = entry{value: v, fetchedAt: c.now(), ttl: ttl}
}

// Invalidate removes all entries whose key starts with prefix and returns
// their number. In-flight fetches are prevented from repopulating the cache.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.gens {
		if strings.HasPrefix(k, prefix) {
			c.gens[k]++
		}
	}
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.Invalidate("")
}

// Len returns the number of entries including expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Package cache memoizes scrape results by query and serializes the scrapes
// themselves behind a single request gate.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/feedscrape/internal/metrics"
	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
)

// DefaultTTL is how long a result set stays fresh.
const DefaultTTL = time.Hour

// ComputeFunc produces a result set while the gate is held. cacheable
// reports whether the result may be stored.
type ComputeFunc func(ctx context.Context) (rs model.ResultSet, cacheable bool, err error)

// Stats reports cache occupancy and lookup counts.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache fronts a Store with the request gate. Lookups never wait on the
// gate; only computes do.
type Cache struct {
	store Store
	ttl   time.Duration
	gate  *semaphore.Weighted
	log   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache. A nil store means an in-memory store of 100 entries.
func New(store Store, ttl time.Duration) *Cache {
	if store == nil {
		store = NewMemory(0)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: store,
		ttl:   ttl,
		gate:  semaphore.NewWeighted(1),
		log:   zap.L().With(zap.String("component", "cache")),
	}
}

// GetOrCompute returns the live cached result for q or runs compute under
// the gate and stores its result. The cache is checked again once the gate
// is held, so concurrent misses for the same query compute once. Waiting
// for the gate is bounded by ctx; giving up is a gate timeout. q must be
// normalized.
func (c *Cache) GetOrCompute(ctx context.Context, q model.ScrapeQuery, compute ComputeFunc) (model.ResultSet, error) {
	key := q.Key()

	hit := false
	defer func() {
		if hit {
			c.hits.Add(1)
			metrics.CacheLookups.WithLabelValues("hit").Inc()
		} else {
			c.misses.Add(1)
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}()

	if rs, ok := c.lookup(ctx, key); ok {
		hit = true
		return rs.Cached(), nil
	}

	waitStart := time.Now()
	if err := c.gate.Acquire(ctx, 1); err != nil {
		metrics.GateWait.Observe(time.Since(waitStart).Seconds())
		return model.ResultSet{}, resilience.WrapError(err, resilience.KindGateTimeout, "timed out waiting for the request gate")
	}
	defer c.gate.Release(1)
	metrics.GateWait.Observe(time.Since(waitStart).Seconds())

	if rs, ok := c.lookup(ctx, key); ok {
		hit = true
		return rs.Cached(), nil
	}

	rs, cacheable, err := compute(ctx)
	if err != nil {
		return model.ResultSet{}, err
	}
	if cacheable {
		if err := c.store.Set(ctx, key, rs, c.ttl); err != nil {
			c.unavailable("store", q, err)
		}
	}
	return rs, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (model.ResultSet, bool) {
	rs, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.unavailable("lookup", model.ScrapeQuery{}, err)
		return model.ResultSet{}, false
	}
	return rs, ok
}

func (c *Cache) unavailable(op string, q model.ScrapeQuery, err error) {
	metrics.CacheLookups.WithLabelValues("error").Inc()
	werr := resilience.WrapError(err, resilience.KindCacheUnavailable, "cache "+op+" failed")
	c.log.Warn("cache unavailable, continuing without it",
		zap.String("op", op),
		zap.Stringer("query", q),
		zap.Error(werr),
	)
}

// Reset drops every entry and returns how many were dropped. A compute in
// flight still stores its result when it finishes.
func (c *Cache) Reset() int {
	n, err := c.store.Clear(context.Background())
	if err != nil {
		c.unavailable("clear", model.ScrapeQuery{}, err)
	}
	c.log.Info("cache reset", zap.Int("cleared", n))
	return n
}

// Stats returns the current size and lifetime lookup counts.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:   c.store.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// TryGate runs fn with the gate held if it is free right now and reports
// whether fn ran.
func (c *Cache) TryGate(fn func()) bool {
	if !c.gate.TryAcquire(1) {
		return false
	}
	defer c.gate.Release(1)
	fn()
	return true
}

// WithGate runs fn with the gate held, waiting as long as ctx allows.
func (c *Cache) WithGate(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return resilience.WrapError(err, resilience.KindGateTimeout, "timed out waiting for the request gate")
	}
	defer c.gate.Release(1)
	return fn(ctx)
}

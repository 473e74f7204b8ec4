// Package cache stores query results in Redis keyed by engine, normalized
// query and limit. Concurrent misses for the same key are collapsed with
// singleflight so only one caller runs the query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/pkg/metrics"
	pkgredis "github.com/Rifat977/search-bench/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Entry is what gets cached for one query.
type Entry struct {
	Query     string            `json:"query"`
	TotalHits int               `json:"total_hits"`
	Products  []catalog.Product `json:"products"`
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Keys    int64   `json:"keys"`
}

type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over client. m may be nil.
func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the Redis key. normalized must already be the canonical query
// form so equivalent queries share an entry.
func Key(engine, normalized string, limit int) string {
	h := sha256.Sum256([]byte(normalized + "\x00" + strconv.Itoa(limit)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, engine, h[:16])
}

func (c *QueryCache) get(ctx context.Context, key string) (*Entry, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &e, true
}

func (c *QueryCache) set(ctx context.Context, key string, e *Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit(engine string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(engine).Inc()
	}
}

func (c *QueryCache) miss(engine string) {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(engine).Inc()
	}
}

// GetOrCompute returns the cached entry for the key, or runs compute and
// stores its result. The bool reports a cache hit. Errors from compute are
// returned as-is and never cached. Redis failures degrade to computing.
//
// Concurrent misses share one compute. It runs detached from the caller's
// cancellation, so compute must bound itself; a caller that gives up only
// stops waiting.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	engine, normalized string,
	limit int,
	compute func(ctx context.Context) (*Entry, error),
) (*Entry, bool, error) {
	key := Key(engine, normalized, limit)
	if e, ok := c.get(ctx, key); ok {
		c.hit(engine)
		return e, true, nil
	}
	c.miss(engine)

	fill := c.group.DoChan(key, func() (interface{}, error) {
		fillCtx := context.WithoutCancel(ctx)
		e, err := compute(fillCtx)
		if err != nil {
			return nil, err
		}
		c.set(fillCtx, key, e)
		return e, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-fill:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.logger.Debug("cache fill shared", "key", key)
		}
		return res.Val.(*Entry), false, nil
	}
}

// Invalidate drops every cached query and returns the number of keys removed.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	keys, err := c.client.CountByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return s, err
	}
	s.Keys = keys
	return s, nil
}

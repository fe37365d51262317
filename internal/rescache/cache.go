// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package rescache memoizes resolved environments keyed by
// (application, profile list, label). At most one computation runs per key
// at a time; concurrent callers for the same key share the in-flight
// result. Entries expire after a TTL, and an external "configuration
// changed" signal invalidates by bumping a generation token, so the signal
// takes effect immediately even when the TTL has not elapsed.
package rescache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// keySeparator joins key segments. It cannot appear in validated
// application names, profiles, or labels.
const keySeparator = "\x1f"

// Wildcard invalidates every application when passed to Invalidate.
const Wildcard = "*"

var meter = otel.Meter("github.com/cardinalhq/confrunner")

// Key builds the canonical cache key for a resolution request. The first
// segment is the application name, which Invalidate relies on.
func Key(application string, profiles []string, label string) string {
	return application + keySeparator + strings.Join(profiles, ",") + keySeparator + label
}

type entry[V any] struct {
	value      V
	generation uint64
}

// Cache memoizes computed values with TTL expiry and generation-token
// invalidation. The zero value is not usable; call New.
type Cache[V any] struct {
	entries *ttlcache.Cache[string, entry[V]]
	group   singleflight.Group

	// A cached entry is valid only while the generation it was computed
	// under is current. The generation for a key is the sum of the global
	// token and the per-application token, so wildcard and per-application
	// invalidation both make older entries (and older in-flight
	// computations) unstorable.
	globalGen atomic.Uint64
	appGens   sync.Map // application -> *atomic.Uint64

	hits          metric.Int64Counter
	misses        metric.Int64Counter
	invalidations metric.Int64Counter
}

// New creates a Cache whose entries expire after ttl. Stop must be called
// when the cache is no longer needed.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries: ttlcache.New(
			ttlcache.WithTTL[string, entry[V]](ttl),
			ttlcache.WithDisableTouchOnHit[string, entry[V]](),
		),
	}
	c.hits = newCounter("confrunner.rescache.hits", "Resolution cache hits")
	c.misses = newCounter("confrunner.rescache.misses", "Resolution cache misses")
	c.invalidations = newCounter("confrunner.rescache.invalidations", "Resolution cache invalidations")
	go c.entries.Start()
	return c
}

func newCounter(name, desc string) metric.Int64Counter {
	m, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("failed to create counter", slog.String("name", name), slog.Any("error", err))
	}
	return m
}

// Stop halts the expiry loop and drops all entries.
func (c *Cache[V]) Stop() {
	c.entries.Stop()
	c.entries.DeleteAll()
}

// GetOrCompute returns the cached value for key, or runs compute to
// produce it. Guarantees:
//   - at most one compute runs per key at a time; concurrent callers for
//     the same key share its result or its error
//   - a failed compute is never cached
//   - compute is not cancelled when an individual caller goes away; other
//     waiters may still need the result
//   - values computed before an invalidation are neither stored nor served
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	gen := c.currentGen(key)
	if item := c.entries.Get(key); item != nil {
		if e := item.Value(); e.generation == gen {
			c.hits.Add(ctx, 1)
			return e.value, nil
		}
		// Stale generation; expired TTL is handled by ttlcache itself.
		c.entries.Delete(key)
	}
	c.misses.Add(ctx, 1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		startGen := c.currentGen(key)
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if c.currentGen(key) == startGen {
			c.entries.Set(key, entry[V]{value: value, generation: startGen}, ttlcache.DefaultTTL)
		}
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops cached entries for one application, or everything when
// given the wildcard. Wired to the external "configuration changed"
// signal by the embedding process.
func (c *Cache[V]) Invalidate(application string) {
	if application == Wildcard || application == "" {
		c.InvalidateAll()
		return
	}
	c.appGen(application).Add(1)
	prefix := application + keySeparator
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Delete(key)
		}
	}
	c.invalidations.Add(context.Background(), 1)
}

// InvalidateAll bumps the global generation token and drops every entry.
// In-flight computations that started before the bump will not be cached.
func (c *Cache[V]) InvalidateAll() {
	c.globalGen.Add(1)
	c.entries.DeleteAll()
	c.invalidations.Add(context.Background(), 1)
}

// Len reports the number of live entries, for tests and debugging.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[V]) currentGen(key string) uint64 {
	application, _, _ := strings.Cut(key, keySeparator)
	return c.globalGen.Load() + c.appGen(application).Load()
}

func (c *Cache[V]) appGen(application string) *atomic.Uint64 {
	if g, ok := c.appGens.Load(application); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := c.appGens.LoadOrStore(application, &atomic.Uint64{})
	return g.(*atomic.Uint64)
}

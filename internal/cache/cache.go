// Package cache memoizes computed usage results per query for a short TTL.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
	"golang.org/x/sync/singleflight"
)

// Key identifies one computed result. WindowStart is part of the key so that a
// cached "today" is not served after local midnight.
type Key struct {
	Period         string
	Sources        string
	PricingVersion string
	WindowStart    time.Time
}

// NewKey builds a key with the source set sorted.
func NewKey(period string, sources []model.SourceID, pricingVersion string, windowStart time.Time) Key {
	return Key{
		Period:         strings.ToLower(strings.TrimSpace(period)),
		Sources:        model.JoinSources(model.SortSources(sources)),
		PricingVersion: pricingVersion,
		WindowStart:    windowStart.UTC(),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Period, k.Sources, k.PricingVersion, k.WindowStart.Unix())
}

// series is a key without its window start.
func (k Key) series() Key {
	k.WindowStart = time.Time{}
	return k
}

// StaleError is returned alongside an expired value when recomputation failed.
type StaleError struct {
	Err      error
	StoredAt time.Time
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("serving result from %s: %v", e.StoredAt.Format(time.RFC3339), e.Err)
}

func (e *StaleError) Unwrap() error {
	return e.Err
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a TTL cache with one in-flight computation per key. The zero value
// is not usable; create one with New.
type Cache[V any] struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[Key]entry[V]
	gen     uint64

	group singleflight.Group
}

// New creates an empty cache reading time from clock (time.Now when nil).
func New[V any](clock func() time.Time) *Cache[V] {
	if clock == nil {
		clock = time.Now
	}
	return &Cache[V]{
		now:     clock,
		entries: make(map[Key]entry[V]),
	}
}

// GetOrCompute returns the value stored under key if it is younger than ttl.
// Otherwise it runs compute, sharing a single call among concurrent callers of
// the same key. compute runs detached from ctx: a caller that gives up returns
// ctx.Err() while the computation finishes and is stored for the next caller.
//
// Failed computations are not stored. If an expired value exists it is returned
// together with a *StaleError wrapping the failure.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, compute func(context.Context) (V, error)) (V, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	gen := c.gen
	c.mu.RUnlock()

	if ok && c.now().Sub(e.storedAt) < ttl {
		return e.value, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%d|%s", gen, key), func() (any, error) {
		// A call that finished between the check above and DoChan may have
		// stored a fresh value already.
		if v, ok := c.fresh(key, gen, ttl); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(V), nil
		}
		c.mu.RLock()
		stale, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return stale.value, &StaleError{Err: res.Err, StoredAt: stale.storedAt}
		}
		return zero, res.Err
	}
}

func (c *Cache[V]) fresh(key Key, gen uint64, ttl time.Duration) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || gen != c.gen || c.now().Sub(e.storedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key Key, gen uint64, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Flushed while computing.
		return
	}
	series := key.series()
	for k := range c.entries {
		if k != key && k.series() == series {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry[V]{value: v, storedAt: c.now()}
}

// Flush drops every entry. Computations already running are not stored.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry[V])
	c.gen++
}

// FlushVersion drops entries computed with a pricing version other than version.
func (c *Cache[V]) FlushVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.PricingVersion != version {
			delete(c.entries, k)
		}
	}
	c.gen++
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

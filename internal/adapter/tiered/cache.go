// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
)

// Cache combines an L1 (in-process) and an optional L2 (remote or durable) cache.
// Get checks L1 first, then L2 (backfilling L1 on L2 hit).
// Set and Delete operate on both levels.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache with the given L1 and L2 backends. l2 may be nil.
// l1Expire caps how long entries live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2. On L2 hit, backfills L1. An L1 failure falls
// through to L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		slog.Warn("l1 cache get failed", "error", err)
	} else if found {
		return val, true, nil
	}
	if c.l2 == nil {
		return nil, false, err
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		if err := c.l1.Set(ctx, key, val, c.l1Expire); err != nil {
			slog.Warn("l1 cache backfill failed", "error", err)
		}
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes to L2 first so that L1 never holds a value L2 rejected.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return c.l1.Set(ctx, key, value, c.l1TTL(ttl))
}

// Delete removes from both L1 and L2.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, key)
}

// PurgeExpired delegates to L2 when it supports explicit purging.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	if p, ok := c.l2.(cache.Purger); ok {
		return p.PurgeExpired(ctx)
	}
	return 0, nil
}

func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if c.l1Expire > 0 && (ttl <= 0 || ttl > c.l1Expire) {
		return c.l1Expire
	}
	return ttl
}

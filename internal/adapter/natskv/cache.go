// Package natskv implements the cache port using NATS JetStream KV as L2 remote cache.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue store as an L2 cache.
// Entry TTL is managed at bucket level.
type Cache struct {
	kv     jetstream.KeyValue
	prefix string
}

// New creates a NATS KV-backed cache. prefix namespaces keys inside a
// shared bucket and may be empty.
func New(kv jetstream.KeyValue, prefix string) *Cache {
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return &Cache{kv: kv, prefix: prefix}
}

// Get retrieves a value from the NATS KV store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	k, err := c.key(key)
	if err != nil {
		return nil, false, err
	}
	entry, err := c.kv.Get(ctx, k)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get: %w", err)
	}
	return entry.Value(), true, nil
}

// Set stores a value in the NATS KV store. The ttl argument is ignored in
// favour of the bucket TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	if _, err := c.kv.Put(ctx, k, value); err != nil {
		return fmt.Errorf("natskv put: %w", err)
	}
	return nil
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	err = c.kv.Purge(ctx, k)
	if err == nil || errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return fmt.Errorf("natskv delete: %w", err)
}

// key validates and namespaces a cache key. KV keys allow only
// [-/_=.a-zA-Z0-9] and must not start or end with a dot.
func (c *Cache) key(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return "", fmt.Errorf("natskv: invalid key %q", key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-/_=.", r):
		default:
			return "", fmt.Errorf("natskv: invalid key %q", key)
		}
	}
	return c.prefix + key, nil
}

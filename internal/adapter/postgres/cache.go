package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
)

var (
	_ cache.Cache  = (*Cache)(nil)
	_ cache.Purger = (*Cache)(nil)
)

// Cache implements cache.Cache on the explanation_cache table.
// Expiry is evaluated against the database clock.
type Cache struct {
	pool *pgxpool.Pool
}

// NewCache creates a Cache backed by the given connection pool.
func NewCache(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := c.pool.QueryRow(ctx,
		`SELECT payload FROM explanation_cache
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache entry: %w", err)
	}
	return payload, true, nil
}

// Set upserts the entry. A ttl <= 0 stores it without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO explanation_cache (key, payload, created_at, expires_at)
		 VALUES ($1, $2, now(), CASE WHEN $3::float8 > 0 THEN now() + make_interval(secs => $3::float8) END)
		 ON CONFLICT (key) DO UPDATE
		 SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		key, value, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM explanation_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired removes expired rows and returns how many were deleted.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM explanation_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Healthy pings the database.
func (c *Cache) Healthy(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

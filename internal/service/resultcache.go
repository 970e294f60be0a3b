package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
)

// ComputeFunc produces a result, reporting each stage it enters.
type ComputeFunc func(ctx context.Context, onStage func(explanation.Stage)) (*explanation.Result, error)

// ResultCache memoises successful results and runs at most one computation
// per key at a time.
type ResultCache struct {
	store cache.Cache
	ttl   time.Duration
	enc   *zstd.Encoder
	dec   *zstd.Decoder

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared state of one in-progress computation. Its context is
// cancelled once every joined caller has left.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int

	mu     sync.Mutex
	stages []explanation.Stage
	subs   map[int]func(explanation.Stage)
	nextID int
}

func (f *flight) subscribe(fn func(explanation.Stage)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stages {
		fn(s)
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return id
}

func (f *flight) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *flight) publish(s explanation.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, s)
	for _, fn := range f.subs {
		fn(s)
	}
}

// NewResultCache creates a ResultCache over store. ttl <= 0 stores entries
// without expiry.
func NewResultCache(store cache.Cache, ttl time.Duration) (*ResultCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ResultCache{
		store:   store,
		ttl:     ttl,
		enc:     enc,
		dec:     dec,
		flights: make(map[string]*flight),
	}, nil
}

// Close releases the codec resources.
func (c *ResultCache) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// Get returns the cached result for req. Backend and decode failures are
// logged and reported as a miss.
func (c *ResultCache) Get(ctx context.Context, req explanation.Request) (*explanation.Result, bool) {
	key := req.CacheKey()
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "result cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	res, err := c.decode(data)
	if err != nil {
		slog.WarnContext(ctx, "result cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	res.CacheHit = true
	return res, true
}

// GetOrCompute returns the cached result for req or joins the single
// in-flight computation for its key, starting one if none exists. onStage
// receives the flight's stages so far and every later one. hit reports a
// cache hit. Failures are never stored.
func (c *ResultCache) GetOrCompute(ctx context.Context, req explanation.Request, onStage func(explanation.Stage), compute ComputeFunc) (res *explanation.Result, hit bool, err error) {
	if res, ok := c.Get(ctx, req); ok {
		return res, true, nil
	}

	key := req.CacheKey()
	f, subID := c.join(ctx, key, onStage)
	defer c.leave(key, f, subID)

	ch := c.group.DoChan(key, func() (any, error) {
		// A caller that started a flight just after the previous one
		// finished lands here after the result was stored.
		if r, ok := c.Get(f.ctx, req); ok {
			return r, nil
		}
		r, err := compute(f.ctx, f.publish)
		if err == nil {
			c.put(f.ctx, key, r)
		}
		// f stays joinable until the result is readable from the store.
		c.mu.Lock()
		if c.flights[key] == f {
			delete(c.flights, key)
		}
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return r, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		out := *r.Val.(*explanation.Result)
		return &out, out.CacheHit, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Evict removes the cached result for req.
func (c *ResultCache) Evict(ctx context.Context, req explanation.Request) error {
	if err := c.store.Delete(ctx, req.CacheKey()); err != nil {
		return fmt.Errorf("evict %s: %w", req.Repo, err)
	}
	return nil
}

// Purge removes expired entries when the backing store supports it.
func (c *ResultCache) Purge(ctx context.Context) (int64, error) {
	p, ok := c.store.(cache.Purger)
	if !ok {
		return 0, nil
	}
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge result cache: %w", err)
	}
	return n, nil
}

// StartJanitor purges expired entries every interval until the returned
// stop function is called.
func (c *ResultCache) StartJanitor(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := c.store.(cache.Purger); !ok || interval <= 0 {
		return cancel
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.Purge(ctx)
				if err != nil {
					slog.Warn("cache janitor failed", "error", err)
					continue
				}
				slog.Info("cache janitor purged expired entries", "count", n)
			}
		}
	}()
	return cancel
}

func (c *ResultCache) join(ctx context.Context, key string, onStage func(explanation.Stage)) (*flight, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, subs: make(map[int]func(explanation.Stage))}
		c.flights[key] = f
	}
	f.refs++
	return f, f.subscribe(onStage)
}

// leave drops one reference. The last caller out cancels the computation
// and forgets the key so the next caller starts afresh.
func (c *ResultCache) leave(key string, f *flight, subID int) {
	f.unsubscribe(subID)

	c.mu.Lock()
	defer c.mu.Unlock()
	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
}

func (c *ResultCache) put(ctx context.Context, key string, r *explanation.Result) {
	stored := *r
	stored.CacheHit = false
	data, err := json.Marshal(stored)
	if err != nil {
		slog.ErrorContext(ctx, "result cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, c.enc.EncodeAll(data, nil), c.ttl); err != nil {
		slog.WarnContext(ctx, "result cache write failed", "key", key, "error", err)
	}
}

func (c *ResultCache) decode(data []byte) (*explanation.Result, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var r explanation.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &r, nil
}

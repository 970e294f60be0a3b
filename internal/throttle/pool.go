// Package throttle caps concurrent requests to an external service across
// every pipeline run in the process.
package throttle

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent calls using a weighted semaphore. The source-host
// client shares one Pool so that per-run worker pools cannot multiply into
// an unbounded number of in-flight requests.
type Pool struct {
	sem   *semaphore.Weighted
	limit int
}

// NewPool creates a Pool that allows at most limit concurrent calls.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the configured concurrency.
func (p *Pool) Limit() int {
	if p == nil {
		return 0
	}
	return p.limit
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

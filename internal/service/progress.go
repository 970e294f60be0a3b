package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

// progress publishes the ordered events of one run. Stages only move
// forward, at most one terminal event is sent, and Close is idempotent.
type progress struct {
	ctx context.Context
	ch  chan explanation.Event
	now func() time.Time

	mu     sync.Mutex
	last   int
	done   bool
	closed bool
}

func newProgress(ctx context.Context, now func() time.Time) *progress {
	return &progress{
		ctx:  ctx,
		ch:   make(chan explanation.Event, len(explanation.Stages)+1),
		now:  now,
		last: -1,
	}
}

// Events returns the receive side of the stream.
func (p *progress) Events() <-chan explanation.Event { return p.ch }

// Stage reports s unless it does not move the run forward.
func (p *progress) Stage(s explanation.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order := s.Order()
	if p.done || p.closed || order <= p.last {
		slog.DebugContext(p.ctx, "ignoring non-forward stage", "stage", s, "last", p.last)
		return
	}
	p.last = order
	p.send(explanation.Event{Type: explanation.EventStatus, Stage: s})
}

// Result sends the terminal success event.
func (p *progress) Result(r *explanation.Result) {
	p.terminal(explanation.Event{Type: explanation.EventResult, Result: r})
}

// Fail sends the terminal error event.
func (p *progress) Fail(err error) {
	p.terminal(explanation.Event{Type: explanation.EventError, Err: err, Detail: domain.UserMessage(err)})
}

func (p *progress) terminal(ev explanation.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.closed {
		return
	}
	p.done = true
	p.send(ev)
}

// send must be called with mu held.
func (p *progress) send(ev explanation.Event) {
	ev.Timestamp = p.now()
	select {
	case p.ch <- ev:
	case <-p.ctx.Done():
	}
}

// Close closes the stream.
func (p *progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

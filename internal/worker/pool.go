// Package worker provides a small fixed-size pool for fire-and-forget
// tasks. Submission never blocks the caller; execution and failure are
// fully decoupled from the submitting request.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Pool runs submitted functions on a fixed number of worker goroutines
// draining a bounded queue.
type Pool struct {
	queue   chan func(context.Context)
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPool creates a Pool with the given worker count and queue depth.
// Values <= 0 fall back to 2 workers and a queue of 64.
func NewPool(workers, depth int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 64
	}
	return &Pool{
		queue:   make(chan func(context.Context), depth),
		workers: workers,
		logger:  slog.Default(),
	}
}

// Run starts the workers and blocks until ctx is cancelled and all running
// tasks have finished. A task that has begun executing is never cancelled:
// workers pass tasks a context detached from ctx's cancellation.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case fn := <-p.queue:
					p.runTask(taskCtx, fn)
				}
			}
		}()
	}
	wg.Wait()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Submit enqueues fn and returns immediately. It reports false when the
// task was dropped because the queue is full or the pool has shut down;
// the drop is logged, never surfaced to a caller.
func (p *Pool) Submit(fn func(context.Context)) bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.logger.Warn("background task dropped: pool shut down")
		return false
	}

	select {
	case p.queue <- fn:
		return true
	default:
		p.logger.Warn("background task dropped: queue full", "depth", cap(p.queue))
		return false
	}
}

func (p *Pool) runTask(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked", "panic", r)
		}
	}()
	fn(ctx)
}

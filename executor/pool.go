package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool closed")

// Pool runs requests on a fixed set of workers, each owning one Executor
// and therefore one VM and one module cache.
type Pool struct {
	jobs  chan job
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

type job struct {
	ctx   context.Context
	req   Request
	opts  []Option
	reply chan Result
}

// NewPool starts workers executors built by newExecutor.
func NewPool(workers int, newExecutor func() (*Executor, error)) (*Pool, error) {
	if workers < 1 {
		workers = 1
	}
	execs := make([]*Executor, 0, workers)
	for i := 0; i < workers; i++ {
		e, err := newExecutor()
		if err != nil {
			for _, e := range execs {
				e.Close()
			}
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		execs = append(execs, e)
	}

	p := &Pool{jobs: make(chan job)}
	for _, e := range execs {
		e := e
		p.group.Go(func() error {
			defer e.Close()
			for j := range p.jobs {
				j.reply <- e.Run(j.ctx, j.req, j.opts...)
			}
			return nil
		})
	}
	return p, nil
}

// Submit queues req and waits for its result.
func (p *Pool) Submit(ctx context.Context, req Request, opts ...Option) Result {
	reply := make(chan Result, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Result{Error: ErrPoolClosed}
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, opts: opts, reply: reply}:
	case <-ctx.Done():
		p.mu.RUnlock()
		return Result{Error: ctx.Err()}
	}
	p.mu.RUnlock()

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return Result{Error: ctx.Err()}
	}
}

// Close stops accepting requests, waits for the workers to drain and
// closes their executors.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	return p.group.Wait()
}

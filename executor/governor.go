package executor

import (
	"context"
	"runtime"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"
)

const heapMetric = "/memory/classes/heap/objects:bytes"

// heapBytes reads the bytes held by heap objects, live or not yet swept.
// The figure is process-wide.
func heapBytes() uint64 {
	s := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}

// settledHeap collects garbage before reading the heap.
func settledHeap() uint64 {
	runtime.GC()
	return heapBytes()
}

// governor is the context an execution thread runs under. The VM polls
// Done before every instruction; each poll burns one unit of fuel, and
// when a quantum is used up the governor samples the budgets. Once
// tripped, Done stays closed, so every following instruction raises and
// protected calls inside the script cannot recover.
type governor struct {
	outer    context.Context
	up       *governor
	quantum  int64
	fuel     atomic.Int64
	quanta   atomic.Int64
	start    time.Time
	deadline time.Time
	timeout  time.Duration
	heapBase uint64
	heapMax  uint64
	backstop *time.Timer

	// heapCheck is the heap reading that prompts a collection and a
	// settled reading.
	heapCheck uint64

	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
	err      error
	released bool
}

func newGovernor(outer context.Context, up *governor, cfg runConfig) *governor {
	now := time.Now()
	g := &governor{
		outer:    outer,
		up:       up,
		quantum:  cfg.quantum,
		start:    now,
		timeout:  cfg.timeout,
		deadline: now.Add(cfg.timeout),
		heapMax:  cfg.memoryLimit,
		done:     make(chan struct{}),
	}
	if g.quantum <= 0 {
		g.quantum = DefaultQuantum
	}
	if up != nil {
		// Nested executions spend their caller's budgets.
		if up.deadline.Before(g.deadline) {
			g.deadline = up.deadline
			g.timeout = up.timeout
			g.start = up.start
		}
		g.heapBase = up.heapBase
		if up.heapMax < g.heapMax || g.heapMax == 0 {
			g.heapMax = up.heapMax
		}
	} else {
		g.heapBase = heapBytes()
	}
	g.heapCheck = g.heapBase + g.heapMax
	g.fuel.Store(g.quantum)
	g.mu.Lock()
	g.backstop = time.AfterFunc(time.Until(g.deadline), g.sample)
	g.mu.Unlock()
	return g
}

func (g *governor) Deadline() (time.Time, bool) { return g.deadline, true }

func (g *governor) Done() <-chan struct{} {
	if g.fuel.Add(-1) <= 0 {
		g.fuel.Store(g.quantum)
		g.quanta.Add(1)
		g.sample()
	}
	return g.done
}

func (g *governor) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	if g.released {
		return context.Canceled
	}
	return nil
}

func (g *governor) Value(key any) any { return g.outer.Value(key) }

// sample checks the budgets and trips the governor on a violation.
func (g *governor) sample() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil || g.released {
		return
	}
	if g.up != nil {
		if err := g.up.tripped(); err != nil {
			g.tripLocked(err)
			return
		}
	}
	now := time.Now()
	if !now.Before(g.deadline) {
		g.tripLocked(&ResourceExceededError{
			Kind:  ResourceTime,
			Limit: int64(g.timeout),
			Used:  int64(now.Sub(g.start)),
		})
		return
	}
	if g.heapMax > 0 {
		if used, over := g.heapOverLocked(); over {
			g.tripLocked(&ResourceExceededError{
				Kind:  ResourceMemory,
				Limit: int64(g.heapMax),
				Used:  int64(used),
			})
			return
		}
	}
	if err := g.outer.Err(); err != nil {
		g.tripLocked(err)
	}
}

// heapOverLocked reports whether the heap grew past the ceiling. The raw
// reading includes garbage not yet swept, which grows with the host's own
// live heap, so a reading over the ceiling is confirmed after a collection.
// The next collection waits for another heapMax bytes of growth.
func (g *governor) heapOverLocked() (uint64, bool) {
	if heapBytes() < g.heapCheck {
		return 0, false
	}
	heap := settledHeap()
	g.heapCheck = max(heap, g.heapBase) + g.heapMax
	if heap <= g.heapBase || heap-g.heapBase <= g.heapMax {
		return 0, false
	}
	return heap - g.heapBase, true
}

// abort trips the governor with err unless it already tripped.
func (g *governor) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil && !g.released {
		g.tripLocked(err)
	}
}

func (g *governor) tripLocked(err error) {
	g.err = err
	if g.backstop != nil {
		g.backstop.Stop()
	}
	g.once.Do(func() { close(g.done) })
}

// tripped returns the violation, or nil while the budgets hold.
func (g *governor) tripped() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// release stops the backstop and closes Done, so coroutines a script
// left suspended cannot run on after the execution.
func (g *governor) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
	if g.backstop != nil {
		g.backstop.Stop()
	}
	g.once.Do(func() { close(g.done) })
}

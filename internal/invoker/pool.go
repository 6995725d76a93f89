// Package invoker implements the prioritized, bounded worker pool
// abstraction named throughout spec §5 as a "named pool": per-location
// read/write invokers, the node-wide job invoker, and the control
// invoker are all instances of Pool.
package invoker

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"go.opentelemetry.io/otel/trace"
)

// Future is the suspension-point handle returned by Submit (spec §5
// "A suspension is expressed as a future returned to the caller;
// cancellation propagates through future chains").
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the submitted task completes or ctx is cancelled,
// returning the task's error (or ctx.Err()).
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	priority int
	seq      uint64 // FIFO tiebreak within a priority class
	fn       func(ctx context.Context) error
	future   *Future
	span     trace.Span
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority // lower is earlier
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Pool is a named invoker: a bounded set of workers draining a priority
// queue in priority order, FIFO within a priority class (spec §5).
type Pool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskHeap
	nextSeq uint64
	closed bool

	wg sync.WaitGroup
}

// NewPool creates a pool with the given worker concurrency.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{sem: semaphore.NewWeighted(int64(workers))}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.dispatch()
	return p
}

// Submit enqueues fn at the given priority (lower runs earlier) and
// returns a Future for completion.
func (p *Pool) Submit(ctx context.Context, priority int, fn func(ctx context.Context) error) *Future {
	fut := &Future{done: make(chan struct{})}
	_, span := startTaskSpan(ctx, priority)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		endTaskSpan(span, context.Canceled)
		fut.err = context.Canceled
		close(fut.done)
		return fut
	}
	t := &task{priority: priority, seq: p.nextSeq, fn: fn, future: fut, span: span}
	p.nextSeq++
	heap.Push(&p.queue, t)
	p.mu.Unlock()
	p.cond.Signal()

	go func() {
		<-ctx.Done()
		// best-effort: nothing to cancel once dequeued; the task's own
		// fn is expected to observe ctx itself.
	}()

	return fut
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	for {
		// Take a worker slot before choosing a task, so the choice is made
		// among everything queued by the time a worker is free.
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && len(p.queue) == 0 {
			p.mu.Unlock()
			p.sem.Release(1)
			return
		}
		t := heap.Pop(&p.queue).(*task)
		p.mu.Unlock()

		go func(t *task) {
			defer p.sem.Release(1)
			t.future.err = t.fn(context.Background())
			endTaskSpan(t.span, t.future.err)
			close(t.future.done)
		}(t)
	}
}

// Stop drains the queue and stops accepting new work. Already-dispatched
// tasks run to completion.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Len returns the current queue depth.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

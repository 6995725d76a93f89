package rpcserver

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerQueue serializes getTableSamples/getChunkSplits onto a bounded
// pool separate from the RPC framework's own dispatch pool (spec §4.8
// "dispatched on a dedicated worker queue").
type WorkerQueue struct {
	sem *semaphore.Weighted
}

// NewWorkerQueue constructs a queue admitting up to concurrency
// in-flight table-work requests at once.
func NewWorkerQueue(concurrency int64) *WorkerQueue {
	return &WorkerQueue{sem: semaphore.NewWeighted(concurrency)}
}

// Run executes fn once a slot is free, or returns ctx.Err() if ctx is
// cancelled first.
func (q *WorkerQueue) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.sem.Release(1)
	return fn(ctx)
}

// Package workers bounds how many page loads run at once across paginators.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent tasks. Tasks are ordinary goroutines that wait for a
// slot before running; the caller scheduling them is never blocked.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

// New creates a pool running at most size tasks at once.
// A size below one defaults to GOMAXPROCS*4.
func New(size int) *Pool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0) * 4
	}
	return &Pool{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the number of concurrent slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// Run waits for a free slot and runs task. It returns ctx.Err() without
// running task when ctx ends first.
func (p *Pool) Run(ctx context.Context, task func(ctx context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	task(ctx)
	return nil
}

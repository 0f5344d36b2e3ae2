// Package parallel runs jobs on a fixed number of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

type Pool struct {
	wg    sync.WaitGroup
	work  chan func()
	close func()
}

// Start launches numWorkers goroutines, or GOMAXPROCS when numWorkers < 1.
// A pool of one runs jobs inline on the caller's goroutine.
func Start(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	pool := &Pool{close: func() {}}
	if numWorkers == 1 {
		return pool
	}

	pool.work = make(chan func(), numWorkers)
	for range numWorkers {
		pool.wg.Go(func() {
			for f := range pool.work {
				f()
			}
		})
	}
	pool.close = sync.OnceFunc(func() { close(pool.work) })
	return pool
}

// Do queues f, blocking while every worker is busy. It returns ctx.Err()
// without queueing if ctx ends first.
func (p *Pool) Do(ctx context.Context, f func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.work == nil {
		f()
		return nil
	}
	select {
	case p.work <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait stops accepting jobs and waits for the queued ones to finish. Do
// must not be called afterwards.
func (p *Pool) Wait() {
	p.close()
	p.wg.Wait()
}

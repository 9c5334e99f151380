package worker

import (
	"context"
	"sync"
)

// Runner is any worker loop that blocks until its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Pool manages the lifecycle of a set of workers as one unit.
type Pool struct {
	runners []Runner
	wg      sync.WaitGroup
}

func NewPool(runners ...Runner) *Pool {
	return &Pool{runners: runners}
}

// Start launches every worker as a goroutine. Cancelling ctx triggers a
// graceful shutdown of the whole pool.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runners {
		p.wg.Add(1)
		go func(r Runner) {
			defer p.wg.Done()
			r.Run(ctx)
		}(r)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

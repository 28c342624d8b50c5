// Package taskpool runs accepted pipeline runs on a fixed set of in-process
// workers.
package taskpool

import (
	"context"
	"sync"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

// Task is one unit of background work. The context is the pool's lifecycle
// context; tasks should stop early when it is done.
type Task func(ctx context.Context)

// Pool is an unbounded FIFO queue drained by a fixed number of workers.
// Submit never blocks, so request handlers can hand work off and return 202
// immediately.
type Pool struct {
	log     *logger.Logger
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Task
	closed  bool

	wg sync.WaitGroup
}

func New(log *logger.Logger, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		log:     log.With("component", "taskpool"),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start spawns the worker goroutines. Workers finish their current task on
// shutdown; queued tasks that never started are dropped.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("starting task pool", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	// Wake blocked workers when the lifecycle context ends.
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	}()
}

// Submit queues a task. Tasks submitted after shutdown are dropped.
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("task submitted after shutdown, dropping")
		return
	}
	p.pending = append(p.pending, task)
	p.cond.Signal()
}

// Wait blocks until all workers have exited. Call after the lifecycle context
// is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		task := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("task panicked", "worker", id, "panic", r)
				}
			}()
			task(ctx)
		}()
	}
}

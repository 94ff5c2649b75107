package workqueue

import (
	"context"
	"sync"
)

// Task is a unit of work run by a Pool worker.
type Task func(ctx context.Context)

// Pool runs queued tasks on a fixed number of workers, highest priority
// first. A paused pool keeps accepting tasks but starts none until resumed;
// running tasks are not interrupted.
type Pool struct {
	mu          sync.Mutex
	queue       Queue[Task]
	concurrency int
	running     int
	paused      bool
	started     bool

	// changed is closed and replaced on every state change.
	changed chan struct{}
}

// NewPool creates a pool with the given worker count (at least 1).
// Call Start to launch the workers.
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		concurrency: concurrency,
		changed:     make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done. Start is a no-op
// after the first call.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.concurrency; i++ {
		go p.work(ctx)
	}
}

// Submit queues task at the given priority.
func (p *Pool) Submit(priority int, task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Push(priority, task)
	p.broadcastLocked()
}

// Pause stops workers from picking up new tasks.
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.broadcastLocked()
	}
}

// Resume lets workers pick up tasks again.
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.broadcastLocked()
	}
}

// Paused reports whether the pool is paused.
func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Len returns the number of queued, not yet started tasks.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until the queue is empty and no task is running, or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	return p.waitFor(ctx, func() bool { return p.queue.Len() == 0 && p.running == 0 })
}

// WaitResumed blocks while the pool is paused.
func (p *Pool) WaitResumed(ctx context.Context) error {
	return p.waitFor(ctx, func() bool { return !p.paused })
}

func (p *Pool) waitFor(ctx context.Context, cond func() bool) error {
	for {
		p.mu.Lock()
		if cond() {
			p.mu.Unlock()
			return nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		p.mu.Lock()
		for p.paused || p.queue.Len() == 0 {
			ch := p.changed
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-ch:
			}
			p.mu.Lock()
		}
		task, _ := p.queue.Pop()
		p.running++
		p.broadcastLocked()
		p.mu.Unlock()

		task(ctx)

		p.mu.Lock()
		p.running--
		p.broadcastLocked()
		p.mu.Unlock()
	}
}

func (p *Pool) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

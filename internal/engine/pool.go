package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdown is returned when work is submitted after shutdown began.
var ErrShutdown = errors.New("executor is shut down")

// Pool is a bounded goroutine pool with a FIFO queue.
//
// Core workers live until Close. When no worker is idle and fewer than max
// workers exist, a burst worker is started; burst workers exit once the queue
// is empty. A queueSize of zero means the queue is unbounded. When the queue
// is bounded, full and max workers are busy, Submit runs the task on the
// calling goroutine.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	logger *slog.Logger

	core      int
	max       int
	queueSize int

	workers int
	idle    int // waiting workers that have not been signalled
	closed  bool

	wg sync.WaitGroup
}

// NewPool starts core workers and returns the pool. max is raised to core if
// smaller.
func NewPool(core, max, queueSize int, logger *slog.Logger) *Pool {
	if core < 1 {
		core = 1
	}
	if max < core {
		max = core
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{core: core, max: max, queueSize: queueSize, logger: logger}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for range core {
		p.spawnLocked(nil, false)
	}
	p.mu.Unlock()
	return p
}

// Submit schedules task. It returns ErrShutdown after Close.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrShutdown
	}

	if p.queueSize > 0 && len(p.queue) >= p.queueSize {
		if p.workers < p.max {
			p.spawnLocked(task, true)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		p.logger.Debug("pool saturated, running task on caller")
		p.safeRun(task)
		return nil
	}

	p.queue = append(p.queue, task)
	switch {
	case p.idle > 0:
		p.idle--
		p.cond.Signal()
	case p.workers < p.max:
		p.spawnLocked(nil, true)
	}
	p.mu.Unlock()
	return nil
}

func (p *Pool) spawnLocked(first func(), burst bool) {
	p.workers++
	p.wg.Go(func() { p.work(first, burst) })
}

func (p *Pool) work(first func(), burst bool) {
	if first != nil {
		p.safeRun(first)
	}
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			if p.closed || burst {
				p.workers--
				p.mu.Unlock()
				return
			}
			p.idle++
			p.cond.Wait()
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.safeRun(task)
	}
}

func (p *Pool) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool task panicked", "panic", r)
		}
	}()
	task()
}

// Close stops accepting new work. Queued tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.idle = 0
	p.cond.Broadcast()
}

// Wait blocks until every worker has exited or the timeout elapses. It
// reports whether the pool drained.
func (p *Pool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

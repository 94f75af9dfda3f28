// Package workerpool runs background tasks on a fixed set of goroutines.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/jwulff/rehearse/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool.
type Task func()

// Pool is a bounded goroutine pool with a fixed-size task queue.
type Pool struct {
	queue     chan Task
	wg        sync.WaitGroup
	mu        sync.RWMutex
	accepting atomic.Bool
	closeOnce sync.Once
}

// New starts workers goroutines reading from a queue of queueSize.
func New(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{queue: make(chan Task, queueSize)}
	p.accepting.Store(true)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	log.Debug("worker pool started", "workers", workers, "queue_size", queueSize)
	return p
}

// Submit enqueues a task. It returns false if the pool is draining or the queue is full.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.accepting.Load() {
		return false
	}
	p.wg.Add(1)
	select {
	case p.queue <- task:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected")
		return false
	}
}

// Drain stops accepting tasks and waits for queued and running ones, bounded by ctx.
// Workers exit once the queue is empty.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.accepting.Store(false)
	p.closeOnce.Do(func() { close(p.queue) })
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
		return nil
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}

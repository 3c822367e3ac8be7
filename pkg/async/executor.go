package async

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrExecutorClosed is returned by Execute after Close.
	ErrExecutorClosed = errors.New("executor closed")
	// ErrNilFailure stands in for a nil error passed to Failure.
	ErrNilFailure = errors.New("failure without cause")
)

// Executor runs tasks, possibly on another goroutine. Execute must not block
// the caller for the duration of the task unless the implementation is
// documented as inline.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func()) error

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) error { return f(task) }

// Inline runs every task on the caller's goroutine before returning.
var Inline Executor = ExecutorFunc(func(task func()) error {
	runTask(task)
	return nil
})

// Goroutine runs every task on a fresh goroutine.
var Goroutine Executor = ExecutorFunc(func(task func()) error {
	go runTask(task)
	return nil
})

// Pool is a fixed set of workers draining an unbounded FIFO queue. A Pool of
// size 1 is a single dedicated worker: tasks run one at a time in submission
// order.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	workers sync.WaitGroup
}

// NewPool starts size workers. size < 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

// Execute enqueues task and returns immediately.
func (p *Pool) Execute(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrExecutorClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.workers.Wait()
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runTask(task)
	}
}

// runTask keeps a panicking task from taking the worker down with it.
func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task()
}

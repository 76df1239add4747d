// Package pool runs requests on a fixed set of workers, each owning one
// data source slot, fed by a bounded FIFO admission queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/mohammed-shakir/pctile-server/internal/core/observability"
	"github.com/mohammed-shakir/pctile-server/internal/logger"
	"github.com/mohammed-shakir/pctile-server/internal/store"
)

var (
	ErrClosed = errors.New("pool closed")
	ErrPanic  = errors.New("task panicked")
)

// Task runs on a worker with exclusive use of that worker's slot.
type Task func(ctx context.Context, slot *store.Slot)

const (
	stateQueued int32 = iota
	stateRunning
	stateAbandoned
)

type job struct {
	ctx   context.Context
	run   Task
	state atomic.Int32
	err   error
	done  chan struct{}
}

type Pool struct {
	logger *slog.Logger
	queue  chan *job
	size   int
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closing bool
}

// New starts size workers. Each worker gets its own slot from newSlot.
func New(size int, newSlot func() *store.Slot, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Pool{
		logger: log,
		queue:  make(chan *job, size),
		size:   size,
	}
	p.wg.Add(size)
	for i := range size {
		go p.worker(i, newSlot())
	}
	return p
}

// Submit enqueues task and waits for it to finish. It blocks while the
// queue is full. If ctx ends before a worker picks the task up, the task is
// abandoned and ctx.Err() is returned; once running, Submit waits for the
// task to return.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	j := &job{ctx: ctx, run: task, done: make(chan struct{})}

	p.mu.RLock()
	if p.closing {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.queue <- j:
		observability.SetQueueDepth(len(p.queue))
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return fmt.Errorf("admission: %w", ctx.Err())
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		if j.state.CompareAndSwap(stateQueued, stateAbandoned) {
			return fmt.Errorf("admission: %w", ctx.Err())
		}
		<-j.done
		return j.err
	}
}

func (p *Pool) worker(id int, slot *store.Slot) {
	defer p.wg.Done()
	defer slot.Close()

	for j := range p.queue {
		observability.SetQueueDepth(len(p.queue))
		if !j.state.CompareAndSwap(stateQueued, stateRunning) {
			observability.IncPoolJob("expired")
			continue
		}
		p.exec(id, slot, j)
	}
}

func (p *Pool) exec(id int, slot *store.Slot, j *job) {
	observability.AddBusyWorkers(1)
	ctx := logger.WithWorker(j.ctx, id)
	defer func() {
		observability.AddBusyWorkers(-1)
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(ctx, "task panic recovered",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			// the handle may be mid-query; do not reuse it
			slot.Invalidate()
			j.err = fmt.Errorf("%w: %v", ErrPanic, rec)
			observability.IncPoolJob("panic")
		} else {
			observability.IncPoolJob("ok")
		}
		close(j.done)
	}()
	j.run(ctx, slot)
}

// Readiness reports whether the pool accepts work and its worker count.
func (p *Pool) Readiness() (bool, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closing, p.size
}

// Close stops intake, lets workers drain queued tasks and waits for them.
// Worker slots are closed on exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closing = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

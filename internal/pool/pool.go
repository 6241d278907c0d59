// Package pool provides the fan-out worker pool used by the event router.
//
// A Pool owns a fixed number of worker goroutines, each reading its own
// bounded task queue. SubmitKeyed always routes the same key to the same
// worker, so tasks sharing a key run in submission order. Submit spreads
// unkeyed tasks round-robin. Both block while the chosen queue is full, so a
// burst of fan-out work slows the submitter down instead of losing tasks. A
// panicking task is recovered and logged; the worker keeps running.
package pool

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/logging"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("pool: stopped")

// DefaultQueueSize is the per-worker queue capacity used when none is configured.
const DefaultQueueSize = 1024

// Task is a unit of work.
type Task func()

// Pool is a fixed-size worker pool.
type Pool struct {
	workers   int
	queueSize int
	log       zerolog.Logger

	mu      sync.RWMutex // guards queues against close during a send
	queues  []chan Task
	running bool
	wg      sync.WaitGroup
	done    chan struct{}
	next    atomic.Uint64

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the capacity of each worker's queue.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithLogger sets the logger used to report task panics.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// New creates a pool and starts its workers. The defaults are one worker per
// CPU and DefaultQueueSize queued tasks.
func New(opts ...Option) *Pool {
	p := &Pool{
		workers:   runtime.NumCPU(),
		queueSize: DefaultQueueSize,
		log:       logging.Component("pool"),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.queues = make([]chan Task, p.workers)
	p.running = true
	for i := range p.queues {
		p.queues[i] = make(chan Task, p.queueSize)
		p.wg.Add(1)
		go p.worker(p.queues[i])
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p
}

// Submit queues t on the next worker in turn, waiting while its queue is full.
func (p *Pool) Submit(t Task) error {
	return p.submit(int(p.next.Add(1)%uint64(p.workers)), t)
}

// SubmitKeyed queues t on the worker owning key. Tasks submitted with the
// same key run one at a time in submission order.
func (p *Pool) SubmitKeyed(key string, t Task) error {
	h := fnv.New64a()
	h.Write([]byte(key))
	return p.submit(int(h.Sum64()%uint64(p.workers)), t)
}

func (p *Pool) submit(worker int, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrStopped
	}
	p.queues[worker] <- t
	p.submitted.Add(1)
	return nil
}

func (p *Pool) worker(queue <-chan Task) {
	defer p.wg.Done()
	for t := range queue {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
		p.completed.Add(1)
	}()
	t()
}

// Stop rejects new tasks, lets the workers finish every queued task and waits
// for them to exit. If ctx ends first it returns ctx.Err(); the workers keep
// draining in the background. Stopping twice waits on the same drain.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.running = false
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Panicked  uint64 `json:"panicked"`
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	queued := 0
	for _, q := range p.queues {
		queued += len(q)
	}
	return Stats{
		Workers:   p.workers,
		QueueSize: p.queueSize,
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

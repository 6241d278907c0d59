// Package ringbuffer implements a fixed-capacity multi-producer,
// single-consumer ring buffer.
//
// Producers claim a sequence number with an atomic compare-and-swap on the
// claim cursor, write their value into the slot at seq & (capacity-1) and then
// publish the slot by storing its sequence. A single consumer goroutine reads
// slots strictly in sequence order, so values are handed to the consumer
// callback in claim order. When the ring is full producers wait; there is no
// overwrite and no drop.
package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/logging"
)

// ErrClosed is returned by Publish after Shutdown has begun.
var ErrClosed = errors.New("ringbuffer: closed")

type slot[T any] struct {
	published atomic.Int64
	value     T
}

// Ring is an MPSC ring buffer of T values consumed by one goroutine.
type Ring[T any] struct {
	capacity int64
	mask     int64
	slots    []slot[T]
	consume  func(T)
	wait     WaitStrategy
	log      zerolog.Logger

	claimed  atomic.Int64 // next sequence to hand out
	consumed atomic.Int64 // next sequence the consumer will read
	inflight atomic.Int64
	closed   atomic.Bool
	stopping atomic.Bool

	wake chan struct{}
	done chan struct{}
}

// Option configures a Ring.
type Option func(*options)

type options struct {
	wait WaitStrategy
	log  *zerolog.Logger
}

// WithWaitStrategy sets the idle strategy. The default is Sleeping.
func WithWaitStrategy(w WaitStrategy) Option {
	return func(o *options) {
		o.wait = w
	}
}

// WithLogger sets the logger used to report consumer panics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = &l
	}
}

// New creates a ring of the given capacity and starts its consumer, which
// calls consume for every published value in sequence order. capacity must be
// a positive power of two.
func New[T any](capacity int, consume func(T), opts ...Option) (*Ring[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ringbuffer: capacity %d is not a positive power of two", capacity)
	}
	if consume == nil {
		return nil, errors.New("ringbuffer: nil consumer")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Ring[T]{
		capacity: int64(capacity),
		mask:     int64(capacity - 1),
		slots:    make([]slot[T], capacity),
		consume:  consume,
		wait:     o.wait,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if o.log != nil {
		r.log = *o.log
	} else {
		r.log = logging.Component("ringbuffer")
	}
	for i := range r.slots {
		r.slots[i].published.Store(-1)
	}

	go r.run()
	return r, nil
}

// Publish claims the next slot, copies v into it and makes it visible to the
// consumer. It waits while the ring is full. It returns ErrClosed once
// Shutdown has begun.
func (r *Ring[T]) Publish(v T) error {
	return r.PublishContext(context.Background(), v)
}

// PublishContext is Publish but gives up with ctx.Err() if ctx ends while
// waiting for a free slot. A value is never half-published: the slot is only
// claimed once it is free.
func (r *Ring[T]) PublishContext(ctx context.Context, v T) error {
	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	var seq int64
	for tries := 0; ; tries++ {
		if r.closed.Load() {
			return ErrClosed
		}
		seq = r.claimed.Load()
		if seq-r.consumed.Load() >= r.capacity {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.wait.idle(tries, nil)
			continue
		}
		if r.claimed.CompareAndSwap(seq, seq+1) {
			break
		}
	}

	s := &r.slots[seq&r.mask]
	s.value = v
	s.published.Store(seq)

	if r.wait == Blocking {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (r *Ring[T]) run() {
	defer close(r.done)

	var zero T
	seq := int64(0)
	for idle := 0; ; {
		s := &r.slots[seq&r.mask]
		if s.published.Load() != seq {
			if r.stopping.Load() && seq == r.claimed.Load() {
				return
			}
			r.wait.idle(idle, r.wake)
			idle++
			continue
		}
		idle = 0

		v := s.value
		s.value = zero
		r.deliver(v)
		seq++
		r.consumed.Store(seq)
	}
}

func (r *Ring[T]) deliver(v T) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("ring consumer panicked")
		}
	}()
	r.consume(v)
}

// Shutdown stops accepting new values, waits for producers that already
// passed the closed check, lets the consumer drain every claimed slot and
// waits for it to exit. If ctx ends first it returns ctx.Err() and the
// consumer keeps draining in the background. Calling Shutdown again waits for
// the same drain.
func (r *Ring[T]) Shutdown(ctx context.Context) error {
	r.closed.Store(true)

	for tries := 0; r.inflight.Load() > 0; tries++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.wait.idle(tries, nil)
	}
	r.stopping.Store(true)
	select {
	case r.wake <- struct{}{}:
	default:
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the consumer has exited.
func (r *Ring[T]) Done() <-chan struct{} {
	return r.done
}

// Closed reports whether Shutdown has begun.
func (r *Ring[T]) Closed() bool {
	return r.closed.Load()
}

// Capacity returns the number of slots.
func (r *Ring[T]) Capacity() int {
	return int(r.capacity)
}

// Claimed returns the number of sequences handed out to producers.
func (r *Ring[T]) Claimed() int64 {
	return r.claimed.Load()
}

// Consumed returns the number of values the consumer has finished with.
func (r *Ring[T]) Consumed() int64 {
	return r.consumed.Load()
}

// Depth returns the number of claimed values the consumer has not finished.
func (r *Ring[T]) Depth() int64 {
	return r.claimed.Load() - r.consumed.Load()
}

// Empty reports whether every claimed value has been consumed.
func (r *Ring[T]) Empty() bool {
	return r.consumed.Load() == r.claimed.Load()
}

package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Handler is the capability a subscriber brings to a router: the scope it is
// trusted with and the callback that processes delivered events.
//
// ProcessEvent is always called from the owning Subscriber's single worker
// goroutine, one event at a time, in delivery order.
type Handler interface {
	Scope() scope.Scope
	ProcessEvent(e Event)
}

// HandlerFunc adapts a function to Handler at a fixed scope.
func HandlerFunc(s scope.Scope, fn func(e Event)) Handler {
	return funcHandler{scope: s, fn: fn}
}

type funcHandler struct {
	scope scope.Scope
	fn    func(e Event)
}

func (h funcHandler) Scope() scope.Scope   { return h.scope }
func (h funcHandler) ProcessEvent(e Event) { h.fn(e) }

// QueuePolicy decides what Deliver does when a bounded queue is full.
type QueuePolicy int

const (
	// QueueUnbounded never rejects an event. A slow handler accumulates backlog.
	QueueUnbounded QueuePolicy = iota
	// QueueBlock makes Deliver wait until the worker frees room.
	QueueBlock
	// QueueDropNewest discards the incoming event and counts it as dropped.
	QueueDropNewest
)

func (p QueuePolicy) String() string {
	switch p {
	case QueueUnbounded:
		return "unbounded"
	case QueueBlock:
		return "block"
	case QueueDropNewest:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseQueuePolicy parses "unbounded", "block" or "drop".
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded":
		return QueueUnbounded, nil
	case "block":
		return QueueBlock, nil
	case "drop", "drop-newest", "drop_newest":
		return QueueDropNewest, nil
	default:
		return QueueUnbounded, fmt.Errorf("unknown queue policy %q", s)
	}
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithQueueCapacity bounds the private queue. A capacity <= 0 or the
// QueueUnbounded policy leaves the queue unbounded.
func WithQueueCapacity(capacity int, policy QueuePolicy) SubscriberOption {
	return func(s *Subscriber) {
		if capacity <= 0 || policy == QueueUnbounded {
			s.capacity = 0
			s.policy = QueueUnbounded
			return
		}
		s.capacity = capacity
		s.policy = policy
	}
}

// WithSubscriberLogger sets the logger used to report handler panics.
func WithSubscriberLogger(l zerolog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.log = l
		s.hasLog = true
	}
}

// WithName sets a human-readable name used in logs.
func WithName(name string) SubscriberOption {
	return func(s *Subscriber) {
		s.name = name
	}
}

// Subscriber is a delivery target. It pairs a Handler with an identity handle
// and a private queue drained by exactly one goroutine, so a slow handler
// never blocks the router that delivers to it.
//
// A Subscriber may be subscribed to any number of types on any number of
// routers. Routers never close subscribers; the owner calls Close.
type Subscriber struct {
	id      string
	name    string
	handler Handler
	log     zerolog.Logger
	hasLog  bool

	capacity int
	policy   QueuePolicy

	mu      sync.Mutex
	ready   *sync.Cond // signalled when items are queued or closing starts
	room    *sync.Cond // signalled when the worker takes items
	pending []Event
	closing bool
	done    chan struct{}

	delivered atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// NewSubscriber starts a subscriber around h.
func NewSubscriber(h Handler, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		id:      ulid.Make().String(),
		handler: h,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = s.id
	}
	if !s.hasLog {
		s.log = logging.Component("subscriber")
	}
	s.log = s.log.With().Str("subscriber", s.name).Logger()
	s.ready = sync.NewCond(&s.mu)
	s.room = sync.NewCond(&s.mu)

	go s.run()
	return s
}

// ID returns the identity handle used for list membership.
func (s *Subscriber) ID() string {
	return s.id
}

// Name returns the subscriber name (its ID unless WithName was given).
func (s *Subscriber) Name() string {
	return s.name
}

// Scope returns the handler's scope.
func (s *Subscriber) Scope() scope.Scope {
	return s.handler.Scope()
}

// Handler returns the wrapped handler.
func (s *Subscriber) Handler() Handler {
	return s.handler
}

// Deliver hands e to the private queue. It does not wait for processing.
// With QueueBlock it waits for room; events delivered after Close began are
// dropped. Deliver reports whether the event was queued.
func (s *Subscriber) Deliver(e Event) bool {
	s.mu.Lock()
	for !s.closing && s.capacity > 0 && len(s.pending) >= s.capacity {
		if s.policy == QueueDropNewest {
			s.mu.Unlock()
			s.dropped.Add(1)
			return false
		}
		s.room.Wait()
	}
	if s.closing {
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
	s.pending = append(s.pending, e)
	s.delivered.Add(1)
	s.ready.Signal()
	s.mu.Unlock()
	return true
}

// run is the single worker. It takes the whole backlog at once and processes
// it outside the lock, preserving queue order.
func (s *Subscriber) run() {
	defer close(s.done)

	var batch []Event
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closing {
			s.ready.Wait()
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		batch, s.pending = s.pending, batch[:0]
		s.room.Broadcast()
		s.mu.Unlock()

		for i := range batch {
			s.process(batch[i])
			batch[i] = Event{}
		}
	}
}

func (s *Subscriber) process(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error().
				Str("type", e.Type).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
		}
		s.processed.Add(1)
	}()
	s.handler.ProcessEvent(e)
}

// Close stops accepting events, drains what is already queued and waits for
// the worker to exit. It returns ErrShutdownTimeout if ctx ends first; the
// worker keeps draining in the background in that case. Closing twice is a no-op.
func (s *Subscriber) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closing {
		s.closing = true
		s.ready.Broadcast()
		s.room.Broadcast()
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("subscriber %s: %w", s.name, ErrShutdownTimeout)
	}
}

// Done is closed once the worker has drained its queue and exited.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// SubscriberStats are counters for one subscriber.
type SubscriberStats struct {
	Delivered uint64 `json:"delivered"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
	Pending   int    `json:"pending"`
}

// Stats returns a snapshot of the subscriber's counters.
func (s *Subscriber) Stats() SubscriberStats {
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	return SubscriberStats{
		Delivered: s.delivered.Load(),
		Processed: s.processed.Load(),
		Dropped:   s.dropped.Load(),
		Panics:    s.panics.Load(),
		Pending:   pending,
	}
}

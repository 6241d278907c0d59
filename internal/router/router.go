package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/pool"
	"github.com/telnet2/eventrouter/internal/registry"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
	"github.com/telnet2/eventrouter/internal/scope"
)

// AliasAll is the wildcard type registered at the router's own scope.
const AliasAll = "*"

// Alias returns the wildcard type name for s, e.g. "*SCOPE_PUBLIC".
func Alias(s scope.Scope) string {
	return AliasAll + s.String()
}

// Aliases returns the default types a router at s registers, with their
// scopes: AliasAll at s and one Alias per scope up to and including s.
func Aliases(s scope.Scope) map[string]scope.Scope {
	out := map[string]scope.Scope{AliasAll: s}
	for _, sc := range scope.All() {
		if s.Dominates(sc) {
			out[Alias(sc)] = sc
		}
	}
	return out
}

// State is the lifecycle state of a router.
type State int32

const (
	Running State = iota
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventRouter routes published events to the subscribers of their type.
//
// Publishers write into a lock-free ring buffer. One consumer goroutine drains
// it in commit order and hands every event to the subscribers of its type:
// inline when there is a single subscriber, through the fan-out pool
// otherwise. Each subscriber processes its events on its own goroutine.
//
// Every registry change is checked against the router's scope ceiling and the
// scope of the actor requesting it.
type EventRouter struct {
	scope    scope.Scope
	opts     options
	log      zerolog.Logger
	registry *registry.Registry
	lists    sync.Map // string -> *SubscriberList
	ring     *ringbuffer.Ring[event.Event]
	pool     *pool.Pool

	// structural is held for writing by Register and Unregister and for
	// reading by Subscribe and Unsubscribe, so a scope check and the list it
	// guards always belong to the same registration.
	structural sync.RWMutex
	state      atomic.Int32

	published  atomic.Uint64
	dispatched atomic.Uint64
	skipped    atomic.Uint64
	inline     atomic.Uint64
	fanout     atomic.Uint64
	lost       atomic.Uint64
}

// New creates a router with scope s as its ceiling and registers the default
// aliases.
func New(s scope.Scope, opts ...Option) (*EventRouter, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("router: invalid scope %d", int(s))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &EventRouter{
		scope:    s,
		opts:     o,
		registry: registry.New(),
	}
	if o.log != nil {
		r.log = *o.log
	} else {
		r.log = logging.Component("router")
	}
	r.log = r.log.With().Str("scope", s.String()).Logger()

	ring, err := ringbuffer.New(o.bufferSize, r.dispatch,
		ringbuffer.WithWaitStrategy(o.waitStrategy),
		ringbuffer.WithLogger(r.log))
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	r.ring = ring
	r.pool = pool.New(
		pool.WithWorkers(o.poolSize),
		pool.WithQueueSize(o.poolQueueSize),
		pool.WithLogger(r.log),
	)

	for name, sc := range Aliases(s) {
		if err := r.registry.Register(name, sc); err != nil {
			return nil, err
		}
		r.lists.Store(name, newSubscriberList())
	}

	r.log.Debug().
		Int("buffer_size", o.bufferSize).
		Int("pool_size", r.pool.Stats().Workers).
		Str("wait_strategy", o.waitStrategy.String()).
		Msg("event router started")
	return r, nil
}

// NewFromConfig creates a router from configuration.
func NewFromConfig(cfg config.RouterConfig, opts ...Option) (*EventRouter, error) {
	return New(cfg.Scope, append(ConfigOptions(cfg), opts...)...)
}

// Scope returns the router's scope ceiling.
func (r *EventRouter) Scope() scope.Scope {
	return r.scope
}

// State returns the lifecycle state.
func (r *EventRouter) State() State {
	return State(r.state.Load())
}

func (r *EventRouter) running() bool {
	return r.state.Load() == int32(Running)
}

// RegisterEventType registers eventType at scope s on behalf of registrant.
// It fails if s is above the router's ceiling or the registrant's scope, or if
// the type is already registered. The new type starts with no subscribers.
func (r *EventRouter) RegisterEventType(eventType string, s scope.Scope, registrant event.Handler) error {
	if !r.running() {
		return event.ErrClosed
	}
	if !s.Valid() {
		return fmt.Errorf("register %q: invalid scope %d", eventType, int(s))
	}
	if !r.scope.Dominates(s) {
		return &event.ScopeError{Op: "register", Type: eventType, Actor: r.scope, Required: s, Cause: event.CauseRouter}
	}
	if !registrant.Scope().Dominates(s) {
		return &event.ScopeError{Op: "register", Type: eventType, Actor: registrant.Scope(), Required: s, Cause: event.CauseActor}
	}

	r.structural.Lock()
	defer r.structural.Unlock()
	if err := r.registry.Register(eventType, s); err != nil {
		return err
	}
	r.lists.Store(eventType, newSubscriberList())

	r.log.Debug().Str("type", eventType).Str("type_scope", s.String()).Msg("event type registered")
	return nil
}

// UnregisterEventType removes eventType on behalf of requester. The type is
// only removed when it has no subscribers; otherwise the call succeeds
// without changing anything.
func (r *EventRouter) UnregisterEventType(eventType string, requester event.Handler) error {
	if !r.running() {
		return event.ErrClosed
	}
	r.structural.Lock()
	defer r.structural.Unlock()
	s, err := r.registry.ScopeOf(eventType)
	if err != nil {
		return err
	}
	if !requester.Scope().Dominates(s) {
		return &event.ScopeError{Op: "unregister", Type: eventType, Actor: requester.Scope(), Required: s, Cause: event.CauseActor}
	}
	if v, ok := r.lists.Load(eventType); ok && v.(*SubscriberList).Len() > 0 {
		r.log.Debug().Str("type", eventType).Msg("event type still has subscribers, not unregistered")
		return nil
	}
	r.lists.Delete(eventType)
	r.registry.Unregister(eventType)

	r.log.Debug().Str("type", eventType).Msg("event type unregistered")
	return nil
}

// Subscribe adds sub to the subscribers of eventType. Subscribing twice is a
// no-op.
func (r *EventRouter) Subscribe(eventType string, sub *event.Subscriber) error {
	list, err := r.listFor("subscribe to", eventType, sub)
	if err != nil {
		return err
	}
	defer r.structural.RUnlock()
	list.Add(sub)
	return nil
}

// Unsubscribe removes sub from the subscribers of eventType. It is a no-op
// when sub is not subscribed.
func (r *EventRouter) Unsubscribe(eventType string, sub *event.Subscriber) error {
	list, err := r.listFor("unsubscribe from", eventType, sub)
	if err != nil {
		return err
	}
	defer r.structural.RUnlock()
	list.Remove(sub)
	return nil
}

// listFor checks that sub may use eventType and returns its list with the
// structural read lock held. The caller releases it.
func (r *EventRouter) listFor(op, eventType string, sub *event.Subscriber) (*SubscriberList, error) {
	if !r.running() {
		return nil, event.ErrClosed
	}
	// Registry changes take the write lock, so the scope checked here is the
	// scope of the list returned.
	r.structural.RLock()
	s, err := r.registry.ScopeOf(eventType)
	if err != nil {
		r.structural.RUnlock()
		return nil, err
	}
	if !sub.Scope().Dominates(s) {
		r.structural.RUnlock()
		return nil, &event.ScopeError{Op: op, Type: eventType, Actor: sub.Scope(), Required: s, Cause: event.CauseActor}
	}
	v, ok := r.lists.Load(eventType)
	if !ok {
		r.structural.RUnlock()
		return nil, event.NotRegistered(eventType)
	}
	return v.(*SubscriberList), nil
}

// Publish commits e to the ring buffer. It waits only while the ring is full
// and returns before e is dispatched.
func (r *EventRouter) Publish(e event.Event) error {
	return r.PublishContext(context.Background(), e)
}

// PublishContext is Publish but gives up with ctx.Err() if ctx ends while
// waiting for ring space.
func (r *EventRouter) PublishContext(ctx context.Context, e event.Event) error {
	if !r.running() {
		return event.ErrClosed
	}
	if !r.registry.IsRegistered(e.Type) {
		return event.NotRegistered(e.Type)
	}
	if err := r.ring.PublishContext(ctx, e); err != nil {
		if errors.Is(err, ringbuffer.ErrClosed) {
			return event.ErrClosed
		}
		return err
	}
	r.published.Add(1)
	return nil
}

// dispatch runs on the ring consumer goroutine.
func (r *EventRouter) dispatch(e event.Event) {
	r.dispatched.Add(1)

	v, ok := r.lists.Load(e.Type)
	if !ok {
		r.skipped.Add(1)
		return
	}
	subs := v.(*SubscriberList).Load()
	switch len(subs) {
	case 0:
		r.skipped.Add(1)
	case 1:
		r.inline.Add(1)
		subs[0].Deliver(e)
	default:
		for _, sub := range subs {
			sub := sub
			err := r.pool.SubmitKeyed(sub.ID(), func() { sub.Deliver(e) })
			if err != nil {
				r.lost.Add(1)
				r.log.Warn().Err(err).Str("type", e.Type).Str("subscriber", sub.Name()).Msg("fan-out rejected")
				continue
			}
			r.fanout.Add(1)
		}
	}
}

// AwaitEmpty waits until the consumer has dispatched every committed event or
// timeout elapses, and reports whether it timed out. Subscribers may still be
// processing what was dispatched. On a router that is no longer running it
// returns false at once.
func (r *EventRouter) AwaitEmpty(timeout time.Duration) (timedOut bool) {
	if !r.running() {
		return false
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()

	deadline := time.Now().Add(timeout)
	for !r.ring.Empty() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		time.Sleep(min(b.NextBackOff(), remaining))
	}
	return false
}

// Close shuts the router down. It stops accepting publishes, lets the consumer
// dispatch everything already committed, then stops the fan-out pool. Each
// stage is bounded by the shutdown timeout; overrunning either yields an error
// wrapping event.ErrShutdownTimeout. Subscribers are left running.
//
// Close is terminal. Later calls return nil without doing anything; publishes
// and registry or subscription changes return event.ErrClosed. Queries keep
// answering.
func (r *EventRouter) Close() error {
	if !r.state.CompareAndSwap(int32(Running), int32(ShuttingDown)) {
		return nil
	}
	start := time.Now()
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.shutdownTimeout)
	if err := r.ring.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain ring buffer: %w", event.ErrShutdownTimeout))
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), r.opts.shutdownTimeout)
	if err := r.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop fan-out pool: %w", event.ErrShutdownTimeout))
	}
	cancel()

	r.state.Store(int32(Closed))

	if err := errors.Join(errs...); err != nil {
		r.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("event router close timed out")
		return err
	}
	r.log.Info().
		Uint64("published", r.published.Load()).
		Uint64("dispatched", r.dispatched.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("event router closed")
	return nil
}

// IsRegistered reports whether eventType is registered.
func (r *EventRouter) IsRegistered(eventType string) bool {
	return r.registry.IsRegistered(eventType)
}

// ScopeOf returns the scope eventType was registered at.
func (r *EventRouter) ScopeOf(eventType string) (scope.Scope, error) {
	return r.registry.ScopeOf(eventType)
}

// Types returns the registered type names, sorted.
func (r *EventRouter) Types() []string {
	return r.registry.Types()
}

// TypeInfo describes one registered type.
type TypeInfo struct {
	Type        string      `json:"type"`
	Scope       scope.Scope `json:"scope"`
	Subscribers int         `json:"subscribers"`
}

// TypeInfos returns every registered type with its scope and subscriber
// count, sorted by type name.
func (r *EventRouter) TypeInfos() []TypeInfo {
	entries := r.registry.Entries()
	out := make([]TypeInfo, 0, len(entries))
	for name, s := range entries {
		out = append(out, TypeInfo{Type: name, Scope: s, Subscribers: r.SubscriberCount(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// SubscriberCount returns the number of subscribers of eventType, 0 when the
// type is unknown.
func (r *EventRouter) SubscriberCount(eventType string) int {
	if v, ok := r.lists.Load(eventType); ok {
		return v.(*SubscriberList).Len()
	}
	return 0
}

// Package testutil provides scope-tagged recording subscribers and helpers
// for exercising an event router in tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Recorder is a handler that keeps every event it receives. It owns the
// subscriber that delivers to it.
type Recorder struct {
	scope scope.Scope
	sub   *event.Subscriber

	mu       sync.Mutex
	received []event.Event
}

// NewRecorder creates a recorder at scope s and starts its subscriber.
func NewRecorder(s scope.Scope, opts ...event.SubscriberOption) *Recorder {
	r := &Recorder{scope: s}
	r.sub = event.NewSubscriber(r, opts...)
	return r
}

// CreatePublic creates a recorder at scope.Public.
func CreatePublic() *Recorder { return NewRecorder(scope.Public) }

// CreateFederated creates a recorder at scope.Federated.
func CreateFederated() *Recorder { return NewRecorder(scope.Federated) }

// CreatePrivate creates a recorder at scope.Private.
func CreatePrivate() *Recorder { return NewRecorder(scope.Private) }

// CreateRoot creates a recorder at scope.Root.
func CreateRoot() *Recorder { return NewRecorder(scope.Root) }

// Scope implements event.Handler.
func (r *Recorder) Scope() scope.Scope {
	return r.scope
}

// ProcessEvent implements event.Handler.
func (r *Recorder) ProcessEvent(e event.Event) {
	r.mu.Lock()
	r.received = append(r.received, e)
	r.mu.Unlock()
}

// Subscriber returns the subscriber delivering to r.
func (r *Recorder) Subscriber() *event.Subscriber {
	return r.sub
}

// Received returns a copy of the events received so far, in processing order.
func (r *Recorder) Received() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.received...)
}

// Count returns the number of events received so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

var errNotYet = errors.New("not enough events yet")

// WaitFor waits until at least n events were received or timeout elapses.
func (r *Recorder) WaitFor(n int, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 20 * time.Millisecond
	b.MaxElapsedTime = timeout
	b.Reset()

	err := backoff.Retry(func() error {
		if r.Count() >= n {
			return nil
		}
		return errNotYet
	}, b)
	if err != nil {
		return fmt.Errorf("received %d of %d events: %w", r.Count(), n, err)
	}
	return nil
}

// Close closes the subscriber, draining its queue.
func (r *Recorder) Close(ctx context.Context) error {
	return r.sub.Close(ctx)
}

// CloseAll closes every recorder concurrently and returns the first error.
func CloseAll(ctx context.Context, recs ...*Recorder) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			return rec.Close(ctx)
		})
	}
	return g.Wait()
}

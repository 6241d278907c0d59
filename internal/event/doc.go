/*
Package event defines what flows through an event router and who receives it.

# Events

An Event is a plain value: a type name, the name of the sender, an opaque byte
payload and a millisecond timestamp. Routers copy events by value; the payload
slice is shared, so publishers must treat it as immutable once published.

# Subscribers

A Handler is the capability a component brings: a scope and a ProcessEvent
callback. NewSubscriber wraps a handler into a Subscriber, which adds:

  - an identity handle (a ULID) used for list membership, so two subscribers
    wrapping equal handlers are still distinct;
  - a private queue drained by a single goroutine, so events are processed
    strictly in delivery order and a slow handler never blocks the router.

Subscribers are owned by their creator. Routers deliver to them but never close
them:

	sub := event.NewSubscriber(event.HandlerFunc(scope.Public, func(e event.Event) {
		fmt.Println(e)
	}))
	defer sub.Close(context.Background())

# Queue Policies

The private queue is unbounded by default. WithQueueCapacity bounds it with one
of two overflow policies:

  - QueueBlock: Deliver waits for room (backpressure reaches the router's
    dispatch stage).
  - QueueDropNewest: the incoming event is discarded and counted in Stats.

# Errors

The sentinels in this package are shared by the registry and the router:

  - ErrNotRegistered, ErrAlreadyRegistered (wrapped in *TypeError)
  - ErrInsufficientScope (every *ScopeError matches it)
  - ErrShutdownTimeout, ErrClosed

Use errors.Is and errors.As to inspect them.
*/
package event

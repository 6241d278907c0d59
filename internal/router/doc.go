/*
Package router implements the scoped event router.

An EventRouter is created with a scope ceiling. Components register event
types at a scope no higher than the ceiling and no higher than their own,
subscribe to types whose scope their own scope dominates, and publish events
of any registered type:

	r, err := router.New(scope.Private)
	if err != nil {
		return err
	}
	defer r.Close()

	sub := event.NewSubscriber(handler) // handler.Scope() == scope.Private
	defer sub.Close(ctx)

	if err := r.RegisterEventType("PING", scope.Public, handler); err != nil {
		return err
	}
	if err := r.Subscribe("PING", sub); err != nil {
		return err
	}
	err = r.Publish(event.NewEvent("PING", "me", []byte("hello")))

# Pipeline

Publish copies the event into the next slot of a ring buffer and returns. A
single consumer goroutine takes slots in commit order and looks up the
subscribers of the event's type. A lone subscriber gets the event on the
consumer itself; several subscribers each get a task on the fan-out pool. Pool
tasks are keyed by subscriber, so every subscriber sees events in dispatch
order. Delivery only enqueues on the subscriber; processing happens on the
subscriber's goroutine.

# Aliases

A new router registers AliasAll ("*") at its own scope and Alias(s) (e.g.
"*SCOPE_PUBLIC") for every scope s up to its own. They are ordinary types.

# Shutdown

Close is terminal: it drains the ring, stops the pool and leaves subscribers
to their owners. AwaitEmpty reports whether the ring failed to drain in time;
it does not wait for subscribers to finish processing.
*/
package router

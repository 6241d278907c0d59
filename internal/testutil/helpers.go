package testutil

import (
	"errors"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
)

// SubscribeTo registers eventType at s on behalf of rec, ignoring a previous
// registration, and subscribes rec to it.
func SubscribeTo(r *router.EventRouter, eventType string, s scope.Scope, rec *Recorder) error {
	err := r.RegisterEventType(eventType, s, rec)
	if err != nil && !errors.Is(err, event.ErrAlreadyRegistered) {
		return err
	}
	return r.Subscribe(eventType, rec.Subscriber())
}

// Publish builds an event stamped now and publishes it.
func Publish(r *router.EventRouter, eventType, from string, payload []byte) error {
	return r.Publish(event.NewEvent(eventType, from, payload))
}

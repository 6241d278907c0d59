// Package bridge forwards router events into watermill publishers.
//
// A Forwarder is an event.Handler: subscribe it to router types and every
// delivered event is republished as a watermill message. The payload becomes
// the message payload; type, sender and timestamp travel as metadata.
package bridge

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Metadata keys set on forwarded messages.
const (
	MetadataType      = "event_type"
	MetadataFrom      = "event_from"
	MetadataTimestamp = "event_timestamp"
)

// Forwarder republishes delivered events on a watermill publisher.
type Forwarder struct {
	scope     scope.Scope
	publisher message.Publisher
	topic     func(e event.Event) string
	retry     time.Duration
	log       zerolog.Logger

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithTopic sets the function mapping an event to its topic. The default
// topic is the event type.
func WithTopic(fn func(e event.Event) string) Option {
	return func(f *Forwarder) {
		f.topic = fn
	}
}

// WithTopicPrefix publishes every event on prefix + type.
func WithTopicPrefix(prefix string) Option {
	return WithTopic(func(e event.Event) string { return prefix + e.Type })
}

// WithRetry retries a failed publish with exponential backoff for up to d.
func WithRetry(d time.Duration) Option {
	return func(f *Forwarder) {
		f.retry = d
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Forwarder) {
		f.log = l
	}
}

// NewForwarder creates a forwarder holding scope s.
func NewForwarder(s scope.Scope, pub message.Publisher, opts ...Option) *Forwarder {
	f := &Forwarder{
		scope:     s,
		publisher: pub,
		topic:     func(e event.Event) string { return e.Type },
		log:       logging.Component("bridge"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scope implements event.Handler.
func (f *Forwarder) Scope() scope.Scope {
	return f.scope
}

// ProcessEvent implements event.Handler. Failures are logged and counted;
// they never reach the publisher of the event.
func (f *Forwarder) ProcessEvent(e event.Event) {
	topic := f.topic(e)
	msg := NewMessage(e)

	publish := func() error {
		return f.publisher.Publish(topic, msg)
	}

	var err error
	if f.retry > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 10 * time.Millisecond
		b.MaxInterval = time.Second
		b.MaxElapsedTime = f.retry
		b.Reset()
		err = backoff.Retry(publish, b)
	} else {
		err = publish()
	}

	if err != nil {
		f.failed.Add(1)
		f.log.Error().Err(err).Str("topic", topic).Str("type", e.Type).Msg("failed to forward event")
		return
	}
	f.forwarded.Add(1)
}

// Forwarded returns the number of events published successfully.
func (f *Forwarder) Forwarded() uint64 {
	return f.forwarded.Load()
}

// Failed returns the number of events that could not be published.
func (f *Forwarder) Failed() uint64 {
	return f.failed.Load()
}

// NewMessage converts e into a watermill message.
func NewMessage(e event.Event) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), e.Payload)
	msg.Metadata.Set(MetadataType, e.Type)
	msg.Metadata.Set(MetadataFrom, e.From)
	msg.Metadata.Set(MetadataTimestamp, strconv.FormatInt(e.Timestamp, 10))
	return msg
}

// EventFromMessage converts a message built by NewMessage back into an event.
func EventFromMessage(msg *message.Message) (event.Event, error) {
	e := event.Event{
		Type:    msg.Metadata.Get(MetadataType),
		From:    msg.Metadata.Get(MetadataFrom),
		Payload: []byte(msg.Payload),
	}
	if e.Type == "" {
		return event.Event{}, fmt.Errorf("message %s: missing %s metadata", msg.UUID, MetadataType)
	}
	if ts := msg.Metadata.Get(MetadataTimestamp); ts != "" {
		v, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return event.Event{}, fmt.Errorf("message %s: bad timestamp: %w", msg.UUID, err)
		}
		e.Timestamp = v
	}
	return e, nil
}

package event

import (
	"fmt"
	"time"
)

// Event is the basic communication medium between actors. Only actors whose
// scope dominates the scope of the event's type may receive it.
//
// Event is a plain value. Publishing copies its fields into the router's ring
// buffer; callers must not mutate Payload after publishing it.
type Event struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Payload   []byte `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"` // milliseconds since the Unix epoch
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType, from string, payload []byte) Event {
	return Event{
		Type:      eventType,
		From:      from,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Time returns the timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func (e Event) String() string {
	return fmt.Sprintf("Event {type='%s', from='%s', payload='%s', timestamp='%d'}",
		e.Type, e.From, e.Payload, e.Timestamp)
}

package router

import (
	"github.com/telnet2/eventrouter/internal/pool"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Stats is a snapshot of router counters.
type Stats struct {
	Scope scope.Scope `json:"scope"`
	State State       `json:"state"`
	Types int         `json:"types"`

	// Published counts events committed to the ring.
	Published uint64 `json:"published"`
	// Dispatched counts events the consumer has taken from the ring.
	Dispatched uint64 `json:"dispatched"`
	// Skipped counts dispatched events whose type had no subscribers.
	Skipped uint64 `json:"skipped"`
	// Inline counts single-subscriber deliveries made on the consumer.
	Inline uint64 `json:"inline"`
	// FanOut counts delivery tasks handed to the pool.
	FanOut uint64 `json:"fan_out"`
	// Lost counts delivery tasks the pool rejected during shutdown.
	Lost uint64 `json:"lost"`

	RingCapacity int   `json:"ring_capacity"`
	RingDepth    int64 `json:"ring_depth"`

	Pool pool.Stats `json:"pool"`
}

// Stats returns the current counters.
func (r *EventRouter) Stats() Stats {
	return Stats{
		Scope:        r.scope,
		State:        r.State(),
		Types:        r.registry.Len(),
		Published:    r.published.Load(),
		Dispatched:   r.dispatched.Load(),
		Skipped:      r.skipped.Load(),
		Inline:       r.inline.Load(),
		FanOut:       r.fanout.Load(),
		Lost:         r.lost.Load(),
		RingCapacity: r.ring.Capacity(),
		RingDepth:    r.ring.Depth(),
		Pool:         r.pool.Stats(),
	}
}

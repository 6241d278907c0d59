package router

import (
	"sync/atomic"

	"github.com/telnet2/eventrouter/internal/event"
)

// SubscriberList is the set of subscribers for one event type. Readers get an
// immutable snapshot; writers swap in a new snapshot with compare-and-swap and
// retry on contention, so concurrent writers never lose each other's updates.
type SubscriberList struct {
	snap atomic.Pointer[[]*event.Subscriber]
}

func newSubscriberList() *SubscriberList {
	l := &SubscriberList{}
	empty := []*event.Subscriber{}
	l.snap.Store(&empty)
	return l
}

// Load returns the current snapshot. Callers must not modify it.
func (l *SubscriberList) Load() []*event.Subscriber {
	return *l.snap.Load()
}

// Len returns the number of subscribers in the current snapshot.
func (l *SubscriberList) Len() int {
	return len(*l.snap.Load())
}

// Add appends sub unless a subscriber with the same ID is present.
// It reports whether the list changed.
func (l *SubscriberList) Add(sub *event.Subscriber) bool {
	for {
		old := l.snap.Load()
		if indexOf(*old, sub) >= 0 {
			return false
		}
		next := make([]*event.Subscriber, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, sub)
		if l.snap.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// Remove drops sub. It reports whether sub was present.
func (l *SubscriberList) Remove(sub *event.Subscriber) bool {
	for {
		old := l.snap.Load()
		i := indexOf(*old, sub)
		if i < 0 {
			return false
		}
		next := make([]*event.Subscriber, 0, len(*old)-1)
		next = append(next, (*old)[:i]...)
		next = append(next, (*old)[i+1:]...)
		if l.snap.CompareAndSwap(old, &next) {
			return true
		}
	}
}

func indexOf(subs []*event.Subscriber, sub *event.Subscriber) int {
	for i, s := range subs {
		if s.ID() == sub.ID() {
			return i
		}
	}
	return -1
}

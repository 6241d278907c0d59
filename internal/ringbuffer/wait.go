package ringbuffer

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// WaitStrategy decides how a goroutine idles while the ring is empty (consumer)
// or full (producers).
type WaitStrategy int

const (
	// Sleeping spins briefly, then yields, then sleeps in short naps.
	// It is the default and keeps an idle router almost free.
	Sleeping WaitStrategy = iota
	// Yielding spins briefly and then yields the processor forever.
	// Lowest latency, but an idle consumer keeps one CPU busy.
	Yielding
	// Blocking parks the consumer on a wake-up channel that producers signal.
	Blocking
)

const (
	spinTries  = 100
	yieldTries = 100
	napTime    = 50 * time.Microsecond
	parkTime   = time.Millisecond
)

func (w WaitStrategy) String() string {
	switch w {
	case Sleeping:
		return "sleeping"
	case Yielding:
		return "yielding"
	case Blocking:
		return "blocking"
	default:
		return fmt.Sprintf("WaitStrategy(%d)", int(w))
	}
}

// ParseWaitStrategy parses "sleeping", "yielding" or "blocking".
func ParseWaitStrategy(s string) (WaitStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sleeping":
		return Sleeping, nil
	case "yielding":
		return Yielding, nil
	case "blocking":
		return Blocking, nil
	default:
		return Sleeping, fmt.Errorf("unknown wait strategy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (w WaitStrategy) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WaitStrategy) UnmarshalText(text []byte) error {
	v, err := ParseWaitStrategy(string(text))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// idle performs one wait step. counter is the number of consecutive empty
// polls and is advanced by the caller.
func (w WaitStrategy) idle(counter int, wake <-chan struct{}) {
	switch {
	case counter < spinTries:
		// busy spin
	case counter < spinTries+yieldTries || w == Yielding:
		runtime.Gosched()
	case w == Blocking && wake != nil:
		t := time.NewTimer(parkTime)
		select {
		case <-wake:
		case <-t.C:
		}
		t.Stop()
	default:
		time.Sleep(napTime)
	}
}

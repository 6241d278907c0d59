// Package bench drives an event router with synthetic load and measures how
// long it takes to dispatch everything.
//
// Every epoch builds a fresh router, registers Types event types with
// Subscribers counting subscribers each, and lets Producers goroutines publish
// Events events apiece, cycling through the types. The epoch ends when every
// subscriber has processed its share.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
)

// ErrTimeout is returned when an epoch does not finish within Params.Timeout.
var ErrTimeout = errors.New("bench epoch timed out")

// Params describes a benchmark run.
type Params struct {
	config.BenchConfig

	// Router configures every epoch's router.
	Router config.RouterConfig

	// SubscriberOptions are applied to every bench subscriber.
	SubscriberOptions []event.SubscriberOption

	// Timeout bounds each wait stage of an epoch. Zero means one minute.
	Timeout time.Duration

	// OnRouter, if set, is called with each epoch's router before producers start.
	OnRouter func(r *router.EventRouter)
}

// EpochResult is the outcome of one epoch.
type EpochResult struct {
	Epoch      int           `json:"epoch"`
	Dispatches int64         `json:"dispatches"`
	Received   int64         `json:"received"`
	Elapsed    time.Duration `json:"elapsed"`
	Stats      router.Stats  `json:"stats"`
}

// Throughput returns received events per second.
func (r EpochResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Received) / r.Elapsed.Seconds()
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID        string                  `json:"run_id"`
	Started      time.Time               `json:"started"`
	Config       config.BenchConfig      `json:"config"`
	Scope        scope.Scope             `json:"scope"`
	WaitStrategy ringbuffer.WaitStrategy `json:"wait_strategy"`
	Dispatches   int64                   `json:"dispatches"`
	Epochs       []EpochResult           `json:"epochs"`
	Average      time.Duration           `json:"average"`
}

// TotalDispatches is the number of deliveries one epoch performs. Each event
// reaches every subscriber of its type, so the type count cancels out.
func TotalDispatches(producers, subscribers, events int) int64 {
	return int64(producers) * int64(events) * int64(subscribers)
}

// TypeName returns the name of the i-th bench event type.
func TypeName(i int) string {
	return fmt.Sprintf("EVENT_%d", i)
}

// Runner executes benchmark epochs.
type Runner struct {
	params Params
	runID  string
	log    zerolog.Logger
}

// NewRunner validates p and returns a runner for it.
func NewRunner(p Params) (*Runner, error) {
	if p.Producers <= 0 || p.Types <= 0 || p.Epochs <= 0 {
		return nil, fmt.Errorf("bench: producers, types and epochs must be positive")
	}
	if p.Subscribers < 0 || p.Events < 0 {
		return nil, fmt.Errorf("bench: subscribers and events must not be negative")
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Minute
	}
	runID := uuid.NewString()
	return &Runner{
		params: p,
		runID:  runID,
		log:    logging.Component("bench").With().Str("run", runID).Logger(),
	}, nil
}

// RunID identifies this runner in logs.
func (b *Runner) RunID() string {
	return b.runID
}

// Run executes every epoch in turn and stops at the first failure.
func (b *Runner) Run(ctx context.Context) (*Summary, error) {
	p := b.params
	sum := &Summary{
		RunID:        b.runID,
		Started:      time.Now(),
		Config:       p.BenchConfig,
		Scope:        p.Router.Scope,
		WaitStrategy: p.Router.WaitStrategy,
		Dispatches:   TotalDispatches(p.Producers, p.Subscribers, p.Events),
	}
	b.log.Info().
		Int("producers", p.Producers).
		Int("subscribers", p.Subscribers).
		Int("types", p.Types).
		Int("events", p.Events).
		Int("epochs", p.Epochs).
		Msg("bench started")

	var total time.Duration
	for epoch := 1; epoch <= p.Epochs; epoch++ {
		res, err := b.RunEpoch(ctx, epoch)
		if err != nil {
			return sum, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		sum.Epochs = append(sum.Epochs, res)
		total += res.Elapsed
	}
	sum.Average = total / time.Duration(len(sum.Epochs))

	b.log.Info().
		Int64("dispatches", sum.Dispatches).
		Dur("average", sum.Average).
		Msg("bench finished")
	return sum, nil
}

// RunEpoch runs a single epoch on a fresh router.
func (b *Runner) RunEpoch(ctx context.Context, epoch int) (EpochResult, error) {
	p := b.params
	res := EpochResult{Epoch: epoch, Dispatches: TotalDispatches(p.Producers, p.Subscribers, p.Events)}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	r, err := router.NewFromConfig(p.Router)
	if err != nil {
		return res, err
	}
	defer r.Close()

	types := make([]string, p.Types)
	for i := range types {
		types[i] = TypeName(i)
	}

	var received atomic.Int64
	counter := event.HandlerFunc(scope.Public, func(event.Event) {
		received.Add(1)
	})

	subs := make([]*event.Subscriber, 0, p.Types*p.Subscribers)
	defer func() { closeSubscribers(subs, p.Timeout) }()

	for _, t := range types {
		if err := r.RegisterEventType(t, scope.Public, counter); err != nil {
			return res, err
		}
		for i := 0; i < p.Subscribers; i++ {
			sub := event.NewSubscriber(counter, p.SubscriberOptions...)
			subs = append(subs, sub)
			if err := r.Subscribe(t, sub); err != nil {
				return res, err
			}
		}
	}
	if p.OnRouter != nil {
		p.OnRouter(r)
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.Producers; w++ {
		from := fmt.Sprintf("producer-%d", w)
		g.Go(func() error {
			for i := 0; i < p.Events; i++ {
				e := event.NewEvent(types[i%len(types)], from, nil)
				if err := r.PublishContext(gctx, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if r.AwaitEmpty(p.Timeout) {
		return res, fmt.Errorf("waiting for the router to drain: %w", ErrTimeout)
	}
	// Close drains the fan-out pool, so every delivery is queued before the
	// subscribers are closed.
	if err := r.Close(); err != nil {
		return res, err
	}
	if err := closeSubscribers(subs, p.Timeout); err != nil {
		return res, fmt.Errorf("closing subscribers: %w", err)
	}

	res.Elapsed = time.Since(start)
	res.Received = received.Load()
	res.Stats = r.Stats()

	ev := b.log.Info()
	if res.Received != res.Dispatches {
		ev = b.log.Warn()
	}
	ev.Int("epoch", epoch).
		Int64("dispatches", res.Dispatches).
		Int64("received", res.Received).
		Dur("elapsed", res.Elapsed).
		Float64("per_second", res.Throughput()).
		Msg("epoch finished")
	return res, nil
}

// closeSubscribers closes subs concurrently. Closing twice is a no-op.
func closeSubscribers(subs []*event.Subscriber, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := sub.Close(ctx); err != nil {
				return fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return nil
		})
	}
	return g.Wait()
}

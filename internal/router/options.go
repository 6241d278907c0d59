package router

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
)

type options struct {
	bufferSize      int
	poolSize        int
	poolQueueSize   int
	waitStrategy    ringbuffer.WaitStrategy
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

func defaultOptions() options {
	return options{
		bufferSize:      config.DefaultBufferSize,
		poolQueueSize:   config.DefaultPoolQueueSize,
		waitStrategy:    ringbuffer.Sleeping,
		shutdownTimeout: config.DefaultShutdownTimeout,
	}
}

// Option configures an EventRouter.
type Option func(*options)

// WithBufferSize sets the ring capacity. It must be a power of two.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithPoolSize sets the number of fan-out workers. Zero means one per CPU.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithPoolQueueSize sets the per-worker fan-out queue capacity.
func WithPoolQueueSize(n int) Option {
	return func(o *options) {
		o.poolQueueSize = n
	}
}

// WithWaitStrategy sets how the consumer and full-ring producers idle.
func WithWaitStrategy(w ringbuffer.WaitStrategy) Option {
	return func(o *options) {
		o.waitStrategy = w
	}
}

// WithShutdownTimeout bounds each stage of Close.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithLogger sets the router logger. The default is the "router" component
// of the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = &l
	}
}

// ConfigOptions converts a RouterConfig into options.
func ConfigOptions(cfg config.RouterConfig) []Option {
	return []Option{
		WithBufferSize(cfg.BufferSize),
		WithPoolSize(cfg.PoolSize),
		WithPoolQueueSize(cfg.PoolQueueSize),
		WithWaitStrategy(cfg.WaitStrategy),
		WithShutdownTimeout(cfg.ShutdownTimeout.Std()),
	}
}

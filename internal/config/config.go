package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Defaults.
const (
	DefaultBufferSize      = 16384
	DefaultShutdownTimeout = time.Minute
	DefaultPoolQueueSize   = 1024
)

// Environment variables read by ApplyEnv.
const (
	EnvScope            = "EVENTROUTER_SCOPE"
	EnvBufferSize       = "EVENTROUTER_BUFFER_SIZE"
	EnvPoolSize         = "EVENTROUTER_POOL_SIZE"
	EnvShutdownTimeout  = "EVENTROUTER_SHUTDOWN_TIMEOUT"
	EnvLogLevel         = "EVENTROUTER_LOG_LEVEL"
	EnvWaitStrategy     = "EVENTROUTER_WAIT_STRATEGY"
	EnvSubscriberQueue  = "EVENTROUTER_SUBSCRIBER_QUEUE"
	EnvSubscriberPolicy = "EVENTROUTER_SUBSCRIBER_POLICY"
)

// Config is the complete configuration of an eventrouter process.
type Config struct {
	Router     RouterConfig     `json:"router" yaml:"router"`
	Subscriber SubscriberConfig `json:"subscriber" yaml:"subscriber"`
	Bench      BenchConfig      `json:"bench" yaml:"bench"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// RouterConfig configures one event router.
type RouterConfig struct {
	// Scope is the highest scope the router may host.
	Scope scope.Scope `json:"scope" yaml:"scope"`
	// BufferSize is the ring capacity, a power of two.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// PoolSize is the number of fan-out workers. 0 means one per CPU.
	PoolSize int `json:"pool_size" yaml:"pool_size"`
	// PoolQueueSize bounds the fan-out task queue.
	PoolQueueSize   int                     `json:"pool_queue_size" yaml:"pool_queue_size"`
	WaitStrategy    ringbuffer.WaitStrategy `json:"wait_strategy" yaml:"wait_strategy"`
	ShutdownTimeout Duration                `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SubscriberConfig holds the default queue settings for subscribers created
// by the bench harness and the CLI.
type SubscriberConfig struct {
	// QueueCapacity bounds each subscriber queue. 0 means unbounded.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`
	// Policy is "unbounded", "block" or "drop".
	Policy string `json:"policy" yaml:"policy"`
}

// QueuePolicy parses Policy.
func (c SubscriberConfig) QueuePolicy() (event.QueuePolicy, error) {
	return event.ParseQueuePolicy(c.Policy)
}

// BenchConfig configures the load generator.
type BenchConfig struct {
	Producers   int    `json:"producers" yaml:"producers"`
	Subscribers int    `json:"subscribers" yaml:"subscribers"`
	Types       int    `json:"types" yaml:"types"`
	Events      int    `json:"events" yaml:"events"`
	Epochs      int    `json:"epochs" yaml:"epochs"`
	StatsAddr   string `json:"stats_addr,omitempty" yaml:"stats_addr,omitempty"`
	// HistoryDB is the SQLite file bench results are recorded in.
	HistoryDB string `json:"history_db,omitempty" yaml:"history_db,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
	// File, when set, sends logs to a size-rotated file instead of stderr.
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// Rotation returns the rotating file settings, or nil when File is empty.
func (c LogConfig) Rotation() *logging.Rotation {
	if c.File == "" {
		return nil
	}
	return &logging.Rotation{
		Filename:   c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Scope:           scope.Private,
			BufferSize:      DefaultBufferSize,
			PoolQueueSize:   DefaultPoolQueueSize,
			WaitStrategy:    ringbuffer.Sleeping,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Subscriber: SubscriberConfig{
			Policy: event.QueueUnbounded.String(),
		},
		Bench: BenchConfig{
			Producers:   4,
			Subscribers: 4,
			Types:       5,
			Events:      250000,
			Epochs:      50,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a configuration from the defaults, the file at path (skipped
// when path is empty) and the environment, in that order of precedence.
// Files ending in .yaml or .yml are read as YAML, anything else as JSONC.
func Load(path string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS is Load reading the file from fsys.
func LoadFS(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(fsys, path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(fsys afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	data = interpolate(data)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		// Strip JSONC comments using tidwall/jsonc
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate expands {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadEnvFile loads variables from dotenv files into the process environment.
// Missing files are skipped and variables already set are not overridden.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with EVENTROUTER_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvScope); v != "" {
		s, err := scope.Parse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvScope, err)
		}
		cfg.Router.Scope = s
	}
	if err := envInt(EnvBufferSize, &cfg.Router.BufferSize); err != nil {
		return err
	}
	if err := envInt(EnvPoolSize, &cfg.Router.PoolSize); err != nil {
		return err
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvShutdownTimeout, err)
		}
		cfg.Router.ShutdownTimeout = Duration(d)
	}
	if v := os.Getenv(EnvWaitStrategy); v != "" {
		w, err := ringbuffer.ParseWaitStrategy(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWaitStrategy, err)
		}
		cfg.Router.WaitStrategy = w
	}
	if err := envInt(EnvSubscriberQueue, &cfg.Subscriber.QueueCapacity); err != nil {
		return err
	}
	if v := os.Getenv(EnvSubscriberPolicy); v != "" {
		cfg.Subscriber.Policy = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// Validate checks that the configuration can build a router.
func (c *Config) Validate() error {
	r := c.Router
	if !r.Scope.Valid() {
		return fmt.Errorf("router.scope: invalid scope %d", int(r.Scope))
	}
	if r.BufferSize <= 0 || r.BufferSize&(r.BufferSize-1) != 0 {
		return fmt.Errorf("router.buffer_size: %d is not a positive power of two", r.BufferSize)
	}
	if r.PoolSize < 0 {
		return fmt.Errorf("router.pool_size: must not be negative")
	}
	if r.PoolQueueSize < 0 {
		return fmt.Errorf("router.pool_queue_size: must not be negative")
	}
	if r.ShutdownTimeout <= 0 {
		return fmt.Errorf("router.shutdown_timeout: must be positive")
	}
	if c.Subscriber.QueueCapacity < 0 {
		return fmt.Errorf("subscriber.queue_capacity: must not be negative")
	}
	if _, err := c.Subscriber.QueuePolicy(); err != nil {
		return fmt.Errorf("subscriber.policy: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	b := c.Bench
	if b.Producers <= 0 || b.Subscribers < 0 || b.Types <= 0 || b.Events < 0 || b.Epochs <= 0 {
		return fmt.Errorf("bench: producers, types and epochs must be positive")
	}
	return nil
}

// Duration is a time.Duration that reads and writes as "1m30s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Package logging holds the process-wide zerolog logger. Routers, pools,
// subscribers and the bench harness take child loggers from it with
// Component, so Init must run before they are created for its settings to
// reach them.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// current is the process-wide logger. It may be replaced while other
// goroutines log, e.g. when a watched configuration changes the level.
var current atomic.Pointer[zerolog.Logger]

// file is the rotating file behind current, if any.
var file atomic.Pointer[lumberjack.Logger]

// Level is a zerolog level.
type Level = zerolog.Level

// Levels accepted by ParseLevel.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// consoleTimeFormat keeps sub-second precision, which matters when reading
// dispatch and shutdown timings.
const consoleTimeFormat = "15:04:05.000"

// Config selects the level, destination and format of a logger.
type Config struct {
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool
	// Rotation, when set, sends logs to a size-rotated file instead of Output.
	Rotation *Rotation
}

// Rotation configures a rotating log file.
type Rotation struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (r *Rotation) open() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
		LocalTime:  true,
	}
}

// DefaultConfig logs JSON lines at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Output: os.Stderr}
}

// Init replaces the process-wide logger. A rotating file opened by a
// previous Init is closed.
func Init(cfg Config) {
	var lj *lumberjack.Logger
	if cfg.Rotation != nil {
		lj = cfg.Rotation.open()
		cfg.Output = lj
		cfg.Rotation = nil
	}
	l := New(cfg)
	current.Store(&l)
	if prev := file.Swap(lj); prev != nil {
		prev.Close()
	}
}

// Close closes the rotating log file, if any. Later writes reopen it.
func Close() error {
	if lj := file.Load(); lj != nil {
		return lj.Close()
	}
	return nil
}

// Get returns the process-wide logger.
func Get() zerolog.Logger {
	return *current.Load()
}

// Setup parses level and initialises the process-wide logger on stderr, or
// on the rotating file when rotation is not nil.
func Setup(level string, pretty bool, rotation *Rotation) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	Init(Config{Level: lvl, Output: os.Stderr, Pretty: pretty, Rotation: rotation})
	return nil
}

// New builds a logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Rotation != nil {
		out = cfg.Rotation.open()
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat, NoColor: cfg.Rotation != nil}
	}

	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel parses debug, info, warn (or warning), error and off
// (or disabled), in any case. An empty string means info.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "disabled":
		return Disabled, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Component returns a child of the process-wide logger carrying a component
// field. The child keeps the settings in effect when it was created.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// Debug starts a debug message on the process-wide logger.
func Debug() *zerolog.Event {
	l := Get()
	return l.Debug()
}

// Warn starts a warning on the process-wide logger.
func Warn() *zerolog.Event {
	l := Get()
	return l.Warn()
}

func init() {
	// JSON timestamps are Unix milliseconds, like event timestamps.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	Init(DefaultConfig())
}

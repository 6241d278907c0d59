package bridge

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// Logger adapts a zerolog.Logger to watermill.LoggerAdapter.
type Logger struct {
	log zerolog.Logger
}

// NewLogger wraps l for watermill components.
func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{log: l}
}

var _ watermill.LoggerAdapter = (*Logger)(nil)

func (l *Logger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (l *Logger) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (l *Logger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (l *Logger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (l *Logger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &Logger{log: l.log.With().Fields(map[string]any(fields)).Logger()}
}

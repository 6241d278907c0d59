package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"", InfoLevel},
		{"debug", DebugLevel},
		{"  DEBUG  ", DebugLevel},
		{"Info", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"off", Disabled},
		{"disabled", Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lvl, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lvl)
		})
	}

	_, err := ParseLevel("verbose")
	assert.ErrorContains(t, err, `unknown log level "verbose"`)
}

func TestComponentCarriesField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})
	defer Init(DefaultConfig())

	log := Component("router")
	log.Debug().Msg("filtered")
	log.Info().Int("types", 3).Msg("started")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, float64(3), entry["types"])
	assert.Equal(t, "started", entry["message"])
	assert.IsType(t, float64(0), entry["time"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("debug message")
	Warn().Msg("warn message")

	assert.NotContains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestNewLeavesGlobalAlone(t *testing.T) {
	var global, local bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &global})
	defer Init(DefaultConfig())

	l := New(Config{Level: InfoLevel, Output: &local, Pretty: true})
	l.Info().Msg("local only")

	assert.Zero(t, global.Len())
	assert.Contains(t, local.String(), "local only")
	assert.False(t, json.Valid(local.Bytes()))
}

func TestSetup(t *testing.T) {
	defer Init(DefaultConfig())

	require.NoError(t, Setup("error", false, nil))
	assert.Equal(t, ErrorLevel, Get().GetLevel())

	assert.Error(t, Setup("loud", false, nil))
	assert.Equal(t, ErrorLevel, Get().GetLevel())
}

func TestSetupWithRotation(t *testing.T) {
	defer Init(DefaultConfig())
	path := filepath.Join(t.TempDir(), "logs", "eventrouter.log")

	require.NoError(t, Setup("info", false, &Rotation{Filename: path, MaxSizeMB: 1, MaxBackups: 2}))
	log := Component("bench")
	log.Info().Msg("to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"bench"`)
	assert.Contains(t, string(data), "to file")

	// Reinitialising closes the file; the new logger writes to stderr.
	Init(DefaultConfig())
	assert.NoError(t, Close())
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
	"github.com/telnet2/eventrouter/internal/scope"
)

// clearEnv unsets every EVENTROUTER_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvScope, EnvBufferSize, EnvPoolSize, EnvShutdownTimeout,
		EnvLogLevel, EnvWaitStrategy, EnvSubscriberQueue, EnvSubscriberPolicy,
	} {
		t.Setenv(name, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, scope.Private, cfg.Router.Scope)
	assert.Equal(t, 16384, cfg.Router.BufferSize)
	assert.Equal(t, time.Minute, cfg.Router.ShutdownTimeout.Std())
	assert.Equal(t, ringbuffer.Sleeping, cfg.Router.WaitStrategy)
	assert.Equal(t, 4, cfg.Bench.Producers)
	assert.Equal(t, 250000, cfg.Bench.Events)
	assert.Equal(t, 50, cfg.Bench.Epochs)
}

func TestLoadJSONC(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "eventrouter.jsonc")
	content := `{
		// router settings
		"router": {
			"scope": "SCOPE_ROOT",
			"buffer_size": 1024,
			"wait_strategy": "yielding",
			"shutdown_timeout": "5s", // trailing comment
		},
		"subscriber": {"queue_capacity": 64, "policy": "drop"},
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, scope.Root, cfg.Router.Scope)
	assert.Equal(t, 1024, cfg.Router.BufferSize)
	assert.Equal(t, ringbuffer.Yielding, cfg.Router.WaitStrategy)
	assert.Equal(t, 5*time.Second, cfg.Router.ShutdownTimeout.Std())
	assert.Equal(t, 64, cfg.Subscriber.QueueCapacity)

	policy, err := cfg.Subscriber.QueuePolicy()
	require.NoError(t, err)
	assert.Equal(t, event.QueueDropNewest, policy)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Bench.Producers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "eventrouter.yaml")
	content := `
router:
  scope: federated
  pool_size: 3
bench:
  producers: 2
  events: 1000
log:
  level: debug
  pretty: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, scope.Federated, cfg.Router.Scope)
	assert.Equal(t, 3, cfg.Router.PoolSize)
	assert.Equal(t, 2, cfg.Bench.Producers)
	assert.Equal(t, 1000, cfg.Bench.Events)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, DefaultBufferSize, cfg.Router.BufferSize)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "eventrouter.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router": {"buffer_size": 256, "pool_size": 2}}`), 0644))

	t.Setenv(EnvBufferSize, "512")
	t.Setenv(EnvScope, "public")
	t.Setenv(EnvShutdownTimeout, "250ms")
	t.Setenv(EnvWaitStrategy, "blocking")
	t.Setenv(EnvSubscriberPolicy, "block")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Router.BufferSize, "env wins over file")
	assert.Equal(t, 2, cfg.Router.PoolSize, "file wins over default")
	assert.Equal(t, scope.Public, cfg.Router.Scope)
	assert.Equal(t, 250*time.Millisecond, cfg.Router.ShutdownTimeout.Std())
	assert.Equal(t, ringbuffer.Blocking, cfg.Router.WaitStrategy)
	assert.Equal(t, "block", cfg.Subscriber.Policy)
}

func TestLoadInterpolatesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROUTER_SCOPE_FOR_TEST", "SCOPE_FEDERATED")
	path := filepath.Join(t.TempDir(), "eventrouter.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router": {"scope": "{env:ROUTER_SCOPE_FOR_TEST}"}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, scope.Federated, cfg.Router.Scope)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
	}{
		{name: "missing file", file: "absent.json"},
		{name: "bad json", file: "bad.json", content: `{"router": `},
		{name: "bad scope", file: "scope.json", content: `{"router": {"scope": "galactic"}}`},
		{name: "buffer not power of two", file: "buf.yaml", content: "router:\n  buffer_size: 1000\n"},
		{name: "bad policy", file: "policy.json", content: `{"subscriber": {"policy": "spill"}}`},
		{name: "bad log level", file: "log.json", content: `{"log": {"level": "loud"}}`},
		{name: "bad env int", file: "ok.json", content: `{}`, env: map[string]string{EnvPoolSize: "many"}},
		{name: "bad env duration", file: "ok2.json", content: `{}`, env: map[string]string{EnvShutdownTimeout: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if tt.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("EVENTROUTER_POOL_SIZE=7\nEVENTROUTER_LOG_LEVEL=warn\n"), 0644))

	// godotenv only fills variables that are absent, even when empty.
	require.NoError(t, os.Unsetenv(EnvPoolSize))
	t.Cleanup(func() { os.Unsetenv(EnvPoolSize) })
	t.Setenv(EnvLogLevel, "error")

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), envPath))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Router.PoolSize)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestConfigJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Default())
	require.NoError(t, err)

	var m map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "SCOPE_PRIVATE", m["router"]["scope"])
	assert.Equal(t, "1m0s", m["router"]["shutdown_timeout"])
	assert.Equal(t, "sleeping", m["router"]["wait_strategy"])
}

func TestDiscover(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	assert.Empty(t, Discover(dir))

	yamlPath := filepath.Join(dir, "eventrouter.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("{}"), 0644))
	assert.Equal(t, yamlPath, Discover(dir))

	jsoncPath := filepath.Join(dir, "eventrouter.jsonc")
	require.NoError(t, os.WriteFile(jsoncPath, []byte("{}"), 0644))
	assert.Equal(t, jsoncPath, Discover(dir))

	userDir := Dir()
	require.NoError(t, os.MkdirAll(userDir, 0755))
	userPath := filepath.Join(userDir, "eventrouter.json")
	require.NoError(t, os.WriteFile(userPath, []byte("{}"), 0644))
	assert.Equal(t, userPath, Discover(t.TempDir()))
}

func TestLoadFS(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/eventrouter/eventrouter.yml", []byte(`
router:
  scope: SCOPE_FEDERATED
  pool_size: 3
bench:
  producers: 2
  subscribers: 2
  types: 2
  events: 10
  epochs: 1
`), 0644))

	path := DiscoverFS(fsys, "/etc/eventrouter")
	require.Equal(t, "/etc/eventrouter/eventrouter.yml", path)

	cfg, err := LoadFS(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, scope.Federated, cfg.Router.Scope)
	assert.Equal(t, 3, cfg.Router.PoolSize)
	assert.Equal(t, 10, cfg.Bench.Events)

	_, err = LoadFS(fsys, "/missing.jsonc")
	assert.Error(t, err)
}

func TestLogRotation(t *testing.T) {
	assert.Nil(t, Default().Log.Rotation())

	lc := LogConfig{File: "/var/log/eventrouter.log", MaxSizeMB: 10, MaxBackups: 3, Compress: true}
	r := lc.Rotation()
	require.NotNil(t, r)
	assert.Equal(t, "/var/log/eventrouter.log", r.Filename)
	assert.Equal(t, 10, r.MaxSizeMB)
	assert.Equal(t, 3, r.MaxBackups)
	assert.True(t, r.Compress)
}

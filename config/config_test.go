package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/runner"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2500*time.Millisecond, cfg.GetRetryBaseDelay())
	assert.Equal(t, 5*time.Second, cfg.GetSteeringWindow())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "sparrow.yaml", `
backend:
  transport: ws
  agent_url: ws://agent.local/stream
runtime:
  retry_attempts: 2
  retry_base_delay: 1s
  steering:
    window: 2s
store:
  driver: sqlite
  dsn: /tmp/sparrow.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ws", cfg.Backend.Transport)
	assert.Equal(t, "ws://agent.local/stream", cfg.Backend.AgentURL)
	assert.Equal(t, 2, cfg.Runtime.RetryAttempts)
	assert.Equal(t, time.Second, cfg.GetRetryBaseDelay())
	assert.Equal(t, 2*time.Second, cfg.GetSteeringWindow())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.5, cfg.Runtime.Steering.MinOverlap)
	assert.Equal(t, "slog", cfg.Logging.Backend)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "sparrow.toml", `
[backend]
transport = "echo"

[runtime]
batch_window = "50ms"
dedup_capacity = 64

[logging]
backend = "zap"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "echo", cfg.Backend.Transport)
	assert.Equal(t, 50*time.Millisecond, cfg.GetBatchWindow())
	assert.Equal(t, 64, cfg.Runtime.DedupCapacity)
	assert.Equal(t, "zap", cfg.Logging.Backend)
}

func TestLoad_ParseError(t *testing.T) {
	path := writeFile(t, "bad.yaml", "backend: [")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend.Transport = "anthropic"
			cfg.Backend.APIKey = "k"
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, cfg.Save(path))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "anthropic", got.Backend.Transport)
			assert.Equal(t, cfg.Runtime, got.Runtime)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Run("sparrow variables", func(t *testing.T) {
		t.Setenv("SPARROW_AGENT_URL", "http://env/agent")
		t.Setenv("SPARROW_API_URL", "http://env/api")
		t.Setenv("SPARROW_TRANSPORT", "ws")
		t.Setenv("SPARROW_LOG_LEVEL", "debug")
		t.Setenv("SPARROW_STORE_DRIVER", "http")
		t.Setenv("SPARROW_STORE_DSN", "ignored")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://env/agent", cfg.Backend.AgentURL)
		assert.Equal(t, "http://env/api", cfg.Backend.APIURL)
		assert.Equal(t, "ws", cfg.Backend.Transport)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "http", cfg.Store.Driver)
		assert.Equal(t, "ignored", cfg.Store.DSN)
	})

	t.Run("provider key fills matching transport", func(t *testing.T) {
		t.Setenv("SPARROW_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{Backend: BackendConfig{Transport: "anthropic"}}
		cfg.applyEnvOverrides()
		assert.Equal(t, "ant-key", cfg.Backend.APIKey)
	})

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("SPARROW_API_KEY", "sp-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{Backend: BackendConfig{Transport: "openai"}}
		cfg.applyEnvOverrides()
		assert.Equal(t, "sp-key", cfg.Backend.APIKey)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"transport", func(c *Config) { c.Backend.Transport = "grpc" }, "invalid transport"},
		{"agent_url", func(c *Config) { c.Backend.AgentURL = "" }, "agent_url is required"},
		{"api_key", func(c *Config) { c.Backend.Transport = "openai" }, "API key not configured"},
		{"store", func(c *Config) { c.Store.Driver = "postgres" }, "invalid store driver"},
		{"sqlite_dsn", func(c *Config) { c.Store.Driver = "sqlite" }, "store.dsn is required"},
		{"log_backend", func(c *Config) { c.Logging.Backend = "logrus" }, "invalid logging backend"},
		{"duration", func(c *Config) { c.Runtime.BatchWindow = "soon" }, "runtime.batch_window"},
		{"attempts", func(c *Config) { c.Runtime.RetryAttempts = 0 }, "retry_attempts"},
		{"overlap", func(c *Config) { c.Runtime.Steering.MinOverlap = 1.5 }, "min_overlap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunnerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.RetryAttempts = 2
	cfg.Runtime.RetryBaseDelay = "10ms"
	cfg.Runtime.InferLogAnalysis = false
	cfg.Runtime.Steering.Window = "1s"

	var o runner.Options
	cfg.RunnerOptions()(&o)

	assert.Equal(t, "primary", o.AgentType)
	assert.Equal(t, 2, o.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, o.Retry.BaseDelay)
	assert.Equal(t, 250*time.Millisecond, o.BatchWindow)
	assert.Equal(t, 2048, o.DedupCapacity)
	assert.True(t, o.LogAnalysis.Disabled)
	require.NotNil(t, o.Steerer)
	assert.Equal(t, time.Second, o.Steerer.Window())
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	l, closeFn, err := cfg.NewLogger()
	require.NoError(t, err)
	defer closeFn()
	_, ok := l.(*logging.StructuredLogger)
	assert.True(t, ok)

	cfg.Logging.Backend = "zap"
	l, closeFn, err = cfg.NewLogger()
	require.NoError(t, err)
	defer closeFn()
	_, ok = l.(*logging.ZapAdapter)
	assert.True(t, ok)
}

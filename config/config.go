// Package config loads sparrow configuration from YAML or TOML files with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all sparrow configuration.
type Config struct {
	// Agent backend
	Backend BackendConfig `yaml:"backend" toml:"backend"`

	// Turn runtime tuning
	Runtime RuntimeConfig `yaml:"runtime" toml:"runtime"`

	// Message persistence
	Store StoreConfig `yaml:"store" toml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// BackendConfig selects and configures the agent transport.
type BackendConfig struct {
	Transport      string            `yaml:"transport" toml:"transport"` // sse, ws, openai, anthropic, echo
	AgentURL       string            `yaml:"agent_url" toml:"agent_url"`
	APIURL         string            `yaml:"api_url" toml:"api_url"` // persistence REST base
	BaseURL        string            `yaml:"base_url" toml:"base_url"` // model provider endpoint override
	APIKey         string            `yaml:"api_key" toml:"api_key"`
	Model          string            `yaml:"model" toml:"model"`
	Instructions   string            `yaml:"instructions" toml:"instructions"`
	RequestTimeout string            `yaml:"request_timeout" toml:"request_timeout"`
	Headers        map[string]string `yaml:"headers" toml:"headers"`
}

// RuntimeConfig tunes batching, retries, persistence and steering.
type RuntimeConfig struct {
	AgentType      string `yaml:"agent_type" toml:"agent_type"`
	BatchWindow    string `yaml:"batch_window" toml:"batch_window"`
	DedupCapacity  int    `yaml:"dedup_capacity" toml:"dedup_capacity"`
	RetryAttempts  int    `yaml:"retry_attempts" toml:"retry_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay" toml:"retry_base_delay"`
	PersistTimeout string `yaml:"persist_timeout" toml:"persist_timeout"`

	// Log-analysis intent inference
	InferLogAnalysis bool `yaml:"infer_log_analysis" toml:"infer_log_analysis"`

	Steering SteeringConfig `yaml:"steering" toml:"steering"`
}

// SteeringConfig holds the mid-run steering thresholds.
type SteeringConfig struct {
	MinOverlap float64 `yaml:"min_overlap" toml:"min_overlap"`
	MinShared  int     `yaml:"min_shared" toml:"min_shared"`
	Window     string  `yaml:"window" toml:"window"`
}

// StoreConfig selects the message store.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // memory, sqlite, http
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level"`     // debug, info, warn, error
	Format    string `yaml:"format" toml:"format"`   // json, text
	Backend   string `yaml:"backend" toml:"backend"` // slog, zap
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Transport:      "sse",
			AgentURL:       "http://localhost:8000/api/v1/agui/stream",
			APIURL:         "http://localhost:8000",
			RequestTimeout: "5m",
		},

		Runtime: RuntimeConfig{
			AgentType:        "primary",
			BatchWindow:      "250ms",
			DedupCapacity:    2048,
			RetryAttempts:    4,
			RetryBaseDelay:   "2500ms",
			PersistTimeout:   "30s",
			InferLogAnalysis: true,
			Steering: SteeringConfig{
				MinOverlap: 0.5,
				MinShared:  2,
				Window:     "5s",
			},
		},

		Store: StoreConfig{
			Driver: "memory",
		},

		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			Backend: "slog",
		},
	}
}

// Load loads configuration from a YAML (.yaml, .yml) or TOML (.toml) file.
// A missing file yields the defaults. Environment overrides are applied in
// both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Save writes the configuration as YAML, or TOML for a .toml path.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = []byte(b.String())
	} else {
		var err error
		if data, err = yaml.Marshal(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPARROW_AGENT_URL"); v != "" {
		c.Backend.AgentURL = v
	}
	if v := os.Getenv("SPARROW_API_URL"); v != "" {
		c.Backend.APIURL = v
	}
	if v := os.Getenv("SPARROW_TRANSPORT"); v != "" {
		c.Backend.Transport = v
	}
	if v := os.Getenv("SPARROW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SPARROW_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("SPARROW_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}

	// Provider keys only fill an empty key for the matching transport.
	if c.Backend.APIKey == "" {
		switch c.Backend.Transport {
		case "openai":
			c.Backend.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Backend.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if v := os.Getenv("SPARROW_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
}

// GetRequestTimeout returns the agent request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Backend.RequestTimeout, 5*time.Minute)
}

// GetBatchWindow returns the cadence batching window as a duration.
func (c *Config) GetBatchWindow() time.Duration {
	return parseDuration(c.Runtime.BatchWindow, 250*time.Millisecond)
}

// GetRetryBaseDelay returns the retry base delay as a duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.Runtime.RetryBaseDelay, 2500*time.Millisecond)
}

// GetPersistTimeout returns the persistence write timeout as a duration.
func (c *Config) GetPersistTimeout() time.Duration {
	return parseDuration(c.Runtime.PersistTimeout, 30*time.Second)
}

// GetSteeringWindow returns the ambiguous steering window as a duration.
func (c *Config) GetSteeringWindow() time.Duration {
	return parseDuration(c.Runtime.Steering.Window, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Valid option values.
var (
	ValidTransports   = []string{"sse", "ws", "openai", "anthropic", "echo"}
	ValidStoreDrivers = []string{"memory", "sqlite", "http"}
	ValidLogBackends  = []string{"slog", "zap"}
	ValidLogFormats   = []string{"json", "text"}
)

var durationFields = map[string]func(*Config) string{
	"backend.request_timeout":  func(c *Config) string { return c.Backend.RequestTimeout },
	"runtime.batch_window":     func(c *Config) string { return c.Runtime.BatchWindow },
	"runtime.retry_base_delay": func(c *Config) string { return c.Runtime.RetryBaseDelay },
	"runtime.persist_timeout":  func(c *Config) string { return c.Runtime.PersistTimeout },
	"runtime.steering.window":  func(c *Config) string { return c.Runtime.Steering.Window },
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !slices.Contains(ValidTransports, c.Backend.Transport) {
		return fmt.Errorf("invalid transport: %s (valid: %v)", c.Backend.Transport, ValidTransports)
	}
	switch c.Backend.Transport {
	case "sse", "ws":
		if c.Backend.AgentURL == "" {
			return fmt.Errorf("backend.agent_url is required for transport %s", c.Backend.Transport)
		}
	case "openai", "anthropic":
		if c.Backend.APIKey == "" && c.Backend.BaseURL == "" {
			return fmt.Errorf("API key not configured for transport %s (set SPARROW_API_KEY or the provider key)", c.Backend.Transport)
		}
	}

	if !slices.Contains(ValidStoreDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidStoreDrivers)
	}
	if c.Store.Driver == "http" && c.Backend.APIURL == "" {
		return fmt.Errorf("backend.api_url is required for the http store")
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the sqlite store")
	}

	if !slices.Contains(ValidLogBackends, c.Logging.Backend) {
		return fmt.Errorf("invalid logging backend: %s (valid: %v)", c.Logging.Backend, ValidLogBackends)
	}
	if !slices.Contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid logging format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	for field, get := range durationFields {
		if v := get(c); v != "" {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid duration for %s: %w", field, err)
			}
		}
	}

	if c.Runtime.RetryAttempts < 1 {
		return fmt.Errorf("runtime.retry_attempts must be at least 1, got %d", c.Runtime.RetryAttempts)
	}
	if o := c.Runtime.Steering.MinOverlap; o < 0 || o > 1 {
		return fmt.Errorf("runtime.steering.min_overlap must be within [0,1], got %v", o)
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
	"github.com/moonshubh/Agent-Sparrow-sub001/runner"
	"github.com/moonshubh/Agent-Sparrow-sub001/steering"
)

// RunnerOptions maps the runtime section onto runner options. Store,
// artifacts and logger are left to the caller.
func (c *Config) RunnerOptions() func(o *runner.Options) {
	return func(o *runner.Options) {
		if c.Runtime.AgentType != "" {
			o.AgentType = c.Runtime.AgentType
		}
		o.BatchWindow = c.GetBatchWindow()
		if c.Runtime.DedupCapacity > 0 {
			o.DedupCapacity = c.Runtime.DedupCapacity
		}
		o.Retry = retry.Policy{
			MaxAttempts: c.Runtime.RetryAttempts,
			BaseDelay:   c.GetRetryBaseDelay(),
		}
		o.PersistTimeout = c.GetPersistTimeout()
		o.LogAnalysis.Disabled = !c.Runtime.InferLogAnalysis

		steer := c.Runtime.Steering
		o.Steerer = steering.New(func(so *steering.Options) {
			if steer.MinOverlap > 0 {
				so.MinOverlap = steer.MinOverlap
			}
			if steer.MinShared > 0 {
				so.MinShared = steer.MinShared
			}
			so.Window = c.GetSteeringWindow()
		})
	}
}

// NewLogger builds the configured logger. The returned close function
// flushes buffered output.
func (c *Config) NewLogger() (logging.Logger, func(), error) {
	level := logging.ParseLevel(c.Logging.Level)
	switch c.Logging.Backend {
	case "zap":
		z, err := logging.NewZapLogger(level, c.Logging.Format)
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		return z, func() { _ = z.Sync() }, nil
	default:
		l := logging.NewLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    c.Logging.Format,
			Output:    os.Stderr,
			AddSource: c.Logging.AddSource,
			Component: "sparrow",
		})
		return l, func() {}, nil
	}
}

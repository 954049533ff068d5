package opsgraph

import (
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/observability"
)

// DefaultMaxSteps is the default step ceiling per run. It is a backstop
// against misconfigured cycles, sized for agent graphs of a dozen nodes
// with a few retry loops; raise it per run for larger topologies.
const DefaultMaxSteps = 20

// runConfig holds configuration for one graph run.
type runConfig struct {
	maxSteps int
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	tracing  bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps: DefaultMaxSteps,
		metrics:  observability.NoopMetrics{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxSteps sets the maximum number of node executions per run.
// Default: DefaultMaxSteps. Exceeding the ceiling returns a StepLimitError.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, opsgraph.WithMaxSteps(50))
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithMetrics sets the metrics recorder for this run.
// Default: no-op.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables span creation for the run and each node execution.
func WithTracing(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.spans = sm
			c.tracing = true
		}
	}
}

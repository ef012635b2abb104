package workflow

import (
	"time"

	"github.com/dshills/stepflow-go/workflow/emit"
	"github.com/dshills/stepflow-go/workflow/store"
)

// DefaultMaxIterations is the superstep cap applied when
// WithMaxIterations is not given.
const DefaultMaxIterations = 100

// runnerConfig collects options before they are applied to a Runner.
type runnerConfig struct {
	maxIterations  int
	emitter        emit.Emitter
	checkpoints    store.Store
	metrics        *PrometheusMetrics
	runID          string
	handlerTimeout time.Duration
}

// Option is a functional option for configuring a Runner.
//
// Example:
//
//	runner, err := workflow.NewRunner(wf,
//	    workflow.WithMaxIterations(50),
//	    workflow.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	    workflow.WithCheckpointing(st),
//	)
type Option func(*runnerConfig) error

// WithMaxIterations caps the number of supersteps a run may execute.
//
// The cap is the engine's convergence guard: cyclic workflows are fully
// supported, and a run that still has queued messages after n
// supersteps fails with an error wrapping ErrNotConverged.
//
// Default: DefaultMaxIterations. n must be at least 1.
func WithMaxIterations(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 1 {
			return &WorkflowError{
				Message: "max iterations must be at least 1",
				Code:    CodeInvalidOption,
			}
		}
		cfg.maxIterations = n
		return nil
	}
}

// WithEmitter sets the observability event receiver for the run.
//
// Default: events are discarded.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *runnerConfig) error {
		if emitter == nil {
			return &WorkflowError{
				Message: "emitter cannot be nil",
				Code:    CodeInvalidOption,
			}
		}
		cfg.emitter = emitter
		return nil
	}
}

// WithCheckpointing enables checkpoint persistence. One checkpoint is
// saved to st after every completed superstep, and the Runner gains the
// ability to resume from saved checkpoints.
func WithCheckpointing(st store.Store) Option {
	return func(cfg *runnerConfig) error {
		if st == nil {
			return &WorkflowError{
				Message: "checkpoint store cannot be nil",
				Code:    CodeInvalidOption,
			}
		}
		cfg.checkpoints = st
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewPrometheusMetrics(registry)
//	runner, err := workflow.NewRunner(wf, workflow.WithMetrics(metrics))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *runnerConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithRunID fixes the run identifier instead of generating one. Useful
// for correlating events and checkpoints with external systems.
func WithRunID(runID string) Option {
	return func(cfg *runnerConfig) error {
		if runID == "" {
			return &WorkflowError{
				Message: "run ID cannot be empty",
				Code:    CodeInvalidOption,
			}
		}
		cfg.runID = runID
		return nil
	}
}

// WithHandlerTimeout bounds each handler invocation. The handler's
// context is cancelled when the duration elapses, and the superstep
// fails with the handler's error.
//
// Default: 0 (no per-handler timeout).
func WithHandlerTimeout(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d < 0 {
			return &WorkflowError{
				Message: "handler timeout cannot be negative",
				Code:    CodeInvalidOption,
			}
		}
		cfg.handlerTimeout = d
		return nil
	}
}

// Package graph provides the core graph execution engine for workflow-go.
package graph

import "time"

// Option is a functional option for configuring an Engine.
//
// Functional options provide a clean, extensible API for engine configuration:
//   - Chainable: engine, err := NewEngine(compiled, WithMaxConcurrent(8), WithQueueDepth(1024))
//   - Self-documenting: Option names clearly describe their purpose.
//   - Optional: only specify the configuration you need.
//
// Example:
//
//	engine, err := graph.NewEngine(compiled,
//	    graph.WithMaxConcurrent(16),
//	    graph.WithQueueDepth(2048),
//	    graph.WithDefaultNodeTimeout(10*time.Second),
//	)
type Option func(*EngineConfig) error

// EngineConfig collects every tunable an Engine needs before it can run:
// scheduling limits, the resilience/versioning defaults new node policies
// inherit, and the pluggable components (Checkpointer, Emitter, metrics,
// cost tracker).
type EngineConfig struct {
	MaxSteps            int
	MaxConcurrentNodes  int
	QueueDepth          int
	BackpressureTimeout time.Duration
	DefaultNodeTimeout  time.Duration
	RunWallClockBudget  time.Duration
	ReplayMode          bool
	StrictReplay        bool
	ConflictPolicy      ConflictPolicy

	DefaultRetryPolicy      *RetryPolicy
	CircuitBreakerConfig    CircuitBreakerConfig
	VersioningConfig        VersioningConfig
	InterruptDefaultTimeout time.Duration

	Checkpointer Checkpointer
	Metrics      *PrometheusMetrics
	CostTracker  *CostTracker
}

// defaultEngineConfig returns the conservative out-of-the-box tuning:
// MaxConcurrentNodes=8, QueueDepth=1024, BackpressureTimeout=30s,
// DefaultNodeTimeout=30s, RunWallClockBudget=10m, StrictReplay=true,
// CircuitBreakerConfig per DefaultCircuitBreakerConfig, VersioningConfig
// per DefaultVersioningConfig, InterruptDefaultTimeout=5m.
func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentNodes:      8,
		QueueDepth:              1024,
		BackpressureTimeout:     30 * time.Second,
		DefaultNodeTimeout:      30 * time.Second,
		RunWallClockBudget:      10 * time.Minute,
		StrictReplay:            true,
		CircuitBreakerConfig:    DefaultCircuitBreakerConfig(),
		VersioningConfig:        DefaultVersioningConfig(),
		InterruptDefaultTimeout: 5 * time.Minute,
		Checkpointer:            NewInMemoryCheckpointer(),
	}
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// Default: 0 (no limit, use with caution).
//
// Workflow loops (A → B → A) are fully supported via conditional routing.
// Use MaxSteps to prevent infinite loops when a conditional exit is
// missing or misconfigured. The value is stored in EngineConfig.MaxSteps;
// Invoke and Stream do not read it, so no step limit is enforced and
// ErrMaxStepsExceeded is never returned by the engine.
func WithMaxSteps(n int) Option {
	return func(cfg *EngineConfig) error {
		cfg.MaxSteps = n
		return nil
	}
}

// WithMaxConcurrent sets the maximum number of nodes executing concurrently
// within a single level, enforced through the Resilience bulkhead.
//
// Default: 8.
//
// Tuning guidance: CPU-bound workflows should match runtime.NumCPU();
// I/O-bound workflows can go higher, bounded by downstream service limits.
// Each concurrent node holds a deep copy of state, so memory usage scales
// linearly with this value.
func WithMaxConcurrent(n int) Option {
	return func(cfg *EngineConfig) error {
		cfg.MaxConcurrentNodes = n
		return nil
	}
}

// WithQueueDepth sets how many callers may wait for a slot in the
// Resilience bulkhead (NewEngine passes it to NewResilience). The
// StreamingExecutor's Frontier has a fixed capacity of 100.
//
// Default: 1024. Increase for workflows with large fan-outs.
func WithQueueDepth(n int) Option {
	return func(cfg *EngineConfig) error {
		cfg.QueueDepth = n
		return nil
	}
}

// WithBackpressureTimeout sets EngineConfig.BackpressureTimeout. No
// executor reads the value; ErrBackpressureTimeout is never returned by
// the engine.
//
// Default: 30s.
func WithBackpressureTimeout(d time.Duration) Option {
	return func(cfg *EngineConfig) error {
		cfg.BackpressureTimeout = d
		return nil
	}
}

// WithDefaultNodeTimeout sets the maximum execution time for nodes without
// an explicit NodePolicy.Timeout.
//
// Default: 30s.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *EngineConfig) error {
		cfg.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time for a run.
//
// Default: 10m. Set to 0 to disable.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *EngineConfig) error {
		cfg.RunWallClockBudget = d
		return nil
	}
}

// WithReplayMode enables deterministic replay using recorded I/O.
//
// Default: false (record mode). Requires a prior execution with
// ReplayMode=false to have recorded I/O for Recordable side-effecting
// nodes.
func WithReplayMode(enabled bool) Option {
	return func(cfg *EngineConfig) error {
		cfg.ReplayMode = enabled
		return nil
	}
}

// WithStrictReplay controls replay mismatch behavior: true fails the run
// with ErrReplayMismatch on a recorded-I/O hash mismatch, false tolerates
// it.
//
// Default: true.
func WithStrictReplay(enabled bool) Option {
	return func(cfg *EngineConfig) error {
		cfg.StrictReplay = enabled
		return nil
	}
}

// ConflictPolicy defines how concurrent state updates are handled when
// multiple branches write the same channel with no declared reducer.
//
// Only ConflictFail is currently implemented; LastWriterWins and
// ConflictCRDT are reserved for future policies.
type ConflictPolicy int

const (
	// ConflictFail surfaces a state-conflict count via ExecutionMetrics
	// rather than failing the run outright — the safest default.
	ConflictFail ConflictPolicy = iota
	// LastWriterWins is not yet implemented.
	LastWriterWins
	// ConflictCRDT is not yet implemented.
	ConflictCRDT
)

// WithConflictPolicy sets the policy for handling concurrent state update
// conflicts. Only ConflictFail is currently supported.
func WithConflictPolicy(policy ConflictPolicy) Option {
	return func(cfg *EngineConfig) error {
		if policy != ConflictFail {
			return &EngineError{
				Message: "only ConflictFail policy is currently supported",
				Code:    "UNSUPPORTED_CONFLICT_POLICY",
			}
		}
		cfg.ConflictPolicy = policy
		return nil
	}
}

// WithRetryPolicy sets EngineConfig.DefaultRetryPolicy. The executors do
// not read it: a node retries only under its own NodePolicy.RetryPolicy,
// and a node without one runs once.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(cfg *EngineConfig) error {
		cfg.DefaultRetryPolicy = p
		return nil
	}
}

// WithCircuitBreakerConfig overrides the default circuit breaker tuning
// every per-node CircuitBreaker is created with.
//
// Default: DefaultCircuitBreakerConfig() — FailureThreshold=5, Timeout=30s,
// SuccessThreshold=3, FailureWindow=60s.
func WithCircuitBreakerConfig(c CircuitBreakerConfig) Option {
	return func(cfg *EngineConfig) error {
		cfg.CircuitBreakerConfig = c
		return nil
	}
}

// WithVersioningConfig overrides the StateVersioningSystem's retention and
// delta/full cadence.
//
// Default: DefaultVersioningConfig().
func WithVersioningConfig(c VersioningConfig) Option {
	return func(cfg *EngineConfig) error {
		cfg.VersioningConfig = c
		return nil
	}
}

// WithInterruptDefaultTimeout sets the Timeout value every newly created
// InterruptHandle carries. Nothing in the engine waits on it;
// WaitForInterrupt uses its own timeout argument.
//
// Default: 5m.
func WithInterruptDefaultTimeout(d time.Duration) Option {
	return func(cfg *EngineConfig) error {
		cfg.InterruptDefaultTimeout = d
		return nil
	}
}

// WithCheckpointer installs the Checkpointer a run persists to and resumes
// from.
//
// Default: NewInMemoryCheckpointer(). Use NewSQLiteCheckpointer or
// NewMySQLCheckpointer for durable storage.
func WithCheckpointer(c Checkpointer) Option {
	return func(cfg *EngineConfig) error {
		cfg.Checkpointer = c
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection across scheduling,
// resilience, versioning, and the control-plane components.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, err := graph.NewEngine(compiled, graph.WithMetrics(metrics))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *EngineConfig) error {
		cfg.Metrics = metrics
		return nil
	}
}

// WithCostTracker enables LLM cost tracking (token usage × static pricing)
// for Agent nodes that report their usage through the run's context.
//
// Example:
//
//	tracker := graph.NewCostTracker("run-123", "USD")
//	engine, err := graph.NewEngine(compiled, graph.WithCostTracker(tracker))
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *EngineConfig) error {
		cfg.CostTracker = tracker
		return nil
	}
}

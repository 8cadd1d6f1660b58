package executor

import (
	"log/slog"
	"time"
)

// Defaults for the execution budgets.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMemoryLimit = 128 << 20
	// DefaultQuantum is the number of VM instructions between budget
	// samples.
	DefaultQuantum = 16384
	// DefaultMaxDepth bounds nested module invocations.
	DefaultMaxDepth = 40
	// DefaultModuleCacheSize is the byte budget of the module cache.
	DefaultModuleCacheSize = 64 << 20
)

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint64 = 16 << 20
	MemoryLimit64MB  uint64 = 64 << 20
	MemoryLimit128MB uint64 = 128 << 20
	MemoryLimit256MB uint64 = 256 << 20
	MemoryLimit1GB   uint64 = 1 << 30
)

// Option configures a single Run.
type Option func(*runConfig)

type runConfig struct {
	timeout     time.Duration
	memoryLimit uint64
	quantum     int64
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout:     DefaultTimeout,
		memoryLimit: DefaultMemoryLimit,
		quantum:     DefaultQuantum,
	}
}

// WithTimeout sets the wall-clock budget of an execution.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithMemoryLimit sets how far the heap may grow during an execution, in
// bytes. Zero disables the check.
func WithMemoryLimit(bytes uint64) Option {
	return func(c *runConfig) {
		c.memoryLimit = bytes
	}
}

// WithQuantum sets how many VM instructions run between budget samples.
func WithQuantum(n int64) Option {
	return func(c *runConfig) {
		c.quantum = n
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	run             runConfig
	moduleCacheSize int
	maxDepth        int
	measureSize     bool
	logger          *slog.Logger
	envs            EnvFactory
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		run:             defaultRunConfig(),
		moduleCacheSize: DefaultModuleCacheSize,
		maxDepth:        DefaultMaxDepth,
		measureSize:     true,
	}
}

// WithDefaults sets the budgets every Run starts from.
//
//	executor.New(host, store, executor.WithDefaults(
//	    executor.WithTimeout(2*time.Second),
//	    executor.WithMemoryLimit(executor.MemoryLimit64MB),
//	))
func WithDefaults(opts ...Option) ExecutorOption {
	return func(c *executorConfig) {
		for _, opt := range opts {
			opt(&c.run)
		}
	}
}

// WithModuleCacheSize sets the byte budget of the compiled module cache.
func WithModuleCacheSize(bytes int) ExecutorOption {
	return func(c *executorConfig) {
		c.moduleCacheSize = bytes
	}
}

// WithMaxDepth sets how deeply module invocations may nest.
func WithMaxDepth(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.maxDepth = n
	}
}

// WithGCMeasurement controls whether compiled modules are sized by forcing
// a garbage collection before and after loading them. When disabled the
// source length is used.
func WithGCMeasurement(enabled bool) ExecutorOption {
	return func(c *executorConfig) {
		c.measureSize = enabled
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithEnvFactory replaces the sandbox environment constructor.
func WithEnvFactory(f EnvFactory) ExecutorOption {
	return func(c *executorConfig) {
		c.envs = f
	}
}

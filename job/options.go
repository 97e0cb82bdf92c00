package job

import "time"

// Options configures per-job behavior beyond the required submit fields.
type Options struct {
	// StageTimeout is the deadline applied to each stage invocation.
	// Exceeding it counts as a transient failure.
	StageTimeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		StageTimeout: 2 * time.Minute,
	}
}

// Option is a functional option for configuring a job at submit time.
type Option func(*Options)

// WithStageTimeout sets the per-stage invocation deadline.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.StageTimeout = d
	}
}

package sched

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds dispatcher tuning knobs. Zero values are replaced with
// the defaults below by New.
type Config struct {
	// MaxConcurrent is the pool-wide cap on simultaneously active jobs.
	// Local transcription and generation are memory-bound, so this
	// defaults low.
	MaxConcurrent int `env:"SCHED_MAX_CONCURRENT" envDefault:"2"`

	// MaxQueueDepth bounds the number of queued jobs. Submit returns
	// ErrQueueFull beyond it. Zero means unbounded.
	MaxQueueDepth int `env:"SCHED_MAX_QUEUE_DEPTH" envDefault:"64"`

	// TransientRetryLimit is the total number of invocations a stage
	// gets for transient failures before the job fails.
	TransientRetryLimit int `env:"SCHED_TRANSIENT_RETRY_LIMIT" envDefault:"3"`

	// BackoffBase and BackoffMax bound the jittered exponential backoff
	// between retried invocations.
	BackoffBase time.Duration `env:"SCHED_BACKOFF_BASE" envDefault:"500ms"`
	BackoffMax  time.Duration `env:"SCHED_BACKOFF_MAX" envDefault:"30s"`

	// StaleAfter is the queued age past which a repeatedly skipped job
	// earns a priority boost. Zero disables starvation boosting.
	StaleAfter time.Duration `env:"SCHED_STALE_AFTER" envDefault:"2m"`

	// InputGrace is how long a job may sit awaiting supplemental input
	// before it is cancelled with the input-timeout reason.
	InputGrace time.Duration `env:"SCHED_INPUT_GRACE" envDefault:"15m"`

	// Retention is how long terminal jobs stay queryable in memory.
	// The archive store keeps records beyond this window.
	Retention time.Duration `env:"SCHED_RETENTION" envDefault:"1h"`

	// StageTimeout is the per-invocation deadline for stage adapters.
	StageTimeout time.Duration `env:"SCHED_STAGE_TIMEOUT" envDefault:"2m"`

	// TickInterval paces the dispatch loop's periodic wakeup and the
	// retention janitor.
	TickInterval time.Duration `env:"SCHED_TICK_INTERVAL" envDefault:"1s"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:       2,
		MaxQueueDepth:       64,
		TransientRetryLimit: 3,
		BackoffBase:         500 * time.Millisecond,
		BackoffMax:          30 * time.Second,
		StaleAfter:          2 * time.Minute,
		InputGrace:          15 * time.Minute,
		Retention:           time.Hour,
		StageTimeout:        2 * time.Minute,
		TickInterval:        time.Second,
	}
}

// ConfigFromEnv builds a Config from SCHED_* environment variables,
// falling back to the defaults for unset variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("sched: parse config from env: %w", err)
	}
	return cfg, nil
}

// withDefaults fills zero fields with the default values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.TransientRetryLimit <= 0 {
		c.TransientRetryLimit = def.TransientRetryLimit
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}
	if c.InputGrace <= 0 {
		c.InputGrace = def.InputGrace
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = def.StageTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	return c
}

// Package hook defines the extension system for the scheduler.
// Extensions are notified of lifecycle events (job enqueued, stage
// started, retry scheduled, etc.) and can react to them — logging,
// metrics, audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/stage"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is admitted to the queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// StageStarted is called when the dispatcher begins a stage invocation.
type StageStarted interface {
	OnStageStarted(ctx context.Context, j *job.Job, s stage.Name) error
}

// RetryScheduled is called when a transient failure schedules a retry.
type RetryScheduled interface {
	OnRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) error
}

// InputRequired is called when generation reports a recoverable gap and
// the job parks awaiting supplemental input.
type InputRequired interface {
	OnInputRequired(ctx context.Context, j *job.Job, gap string) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, kind job.FailureKind, detail string) error
}

// JobCancelled is called when a job is cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job, reason string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

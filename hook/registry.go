package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/stage"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type stageStartedEntry struct {
	name string
	hook StageStarted
}

type retryScheduledEntry struct {
	name string
	hook RetryScheduled
}

type inputRequiredEntry struct {
	name string
	hook InputRequired
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobCancelledEntry struct {
	name string
	hook JobCancelled
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobEnqueued    []jobEnqueuedEntry
	stageStarted   []stageStartedEntry
	retryScheduled []retryScheduledEntry
	inputRequired  []inputRequiredEntry
	jobCompleted   []jobCompletedEntry
	jobFailed      []jobFailedEntry
	jobCancelled   []jobCancelledEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(StageStarted); ok {
		r.stageStarted = append(r.stageStarted, stageStartedEntry{name, h})
	}
	if h, ok := e.(RetryScheduled); ok {
		r.retryScheduled = append(r.retryScheduled, retryScheduledEntry{name, h})
	}
	if h, ok := e.(InputRequired); ok {
		r.inputRequired = append(r.inputRequired, inputRequiredEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, jobCancelledEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitStageStarted notifies all extensions that implement StageStarted.
func (r *Registry) EmitStageStarted(ctx context.Context, j *job.Job, s stage.Name) {
	for _, e := range r.stageStarted {
		if err := e.hook.OnStageStarted(ctx, j, s); err != nil {
			r.logHookError("OnStageStarted", e.name, err)
		}
	}
}

// EmitRetryScheduled notifies all extensions that implement RetryScheduled.
func (r *Registry) EmitRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) {
	for _, e := range r.retryScheduled {
		if err := e.hook.OnRetryScheduled(ctx, j, attempt, nextAttemptAt); err != nil {
			r.logHookError("OnRetryScheduled", e.name, err)
		}
	}
}

// EmitInputRequired notifies all extensions that implement InputRequired.
func (r *Registry) EmitInputRequired(ctx context.Context, j *job.Job, gap string) {
	for _, e := range r.inputRequired {
		if err := e.hook.OnInputRequired(ctx, j, gap); err != nil {
			r.logHookError("OnInputRequired", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, kind job.FailureKind, detail string) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, kind, detail); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job, reason string) {
	for _, e := range r.jobCancelled {
		if err := e.hook.OnJobCancelled(ctx, j, reason); err != nil {
			r.logHookError("OnJobCancelled", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

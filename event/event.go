// Package event provides the observation surface of the scheduler: every
// job state transition is published as an Event on a Bus, and callers
// subscribe either to a single job or to the firehose of all jobs.
package event

import (
	"time"

	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
)

// Type names what happened to a job.
type Type string

const (
	// TypeEnqueued fires when a job is admitted to the queue.
	TypeEnqueued Type = "enqueued"
	// TypeStateChanged fires on every state transition.
	TypeStateChanged Type = "state_changed"
	// TypeRetryScheduled fires when a transient failure schedules a retry.
	TypeRetryScheduled Type = "retry_scheduled"
	// TypeInputRequired fires when generation reports a recoverable gap.
	TypeInputRequired Type = "input_required"
	// TypeCompleted fires when a job reaches Completed.
	TypeCompleted Type = "completed"
	// TypeFailed fires when a job reaches Failed.
	TypeFailed Type = "failed"
	// TypeCancelled fires when a job reaches Cancelled.
	TypeCancelled Type = "cancelled"
)

// Event is one observable occurrence in a job's lifecycle.
type Event struct {
	ID    id.EventID `json:"id"`
	JobID id.JobID   `json:"job_id"`
	Type  Type       `json:"type"`

	// From and To describe the transition for TypeStateChanged and the
	// terminal event types; both are empty for TypeEnqueued.
	From job.State `json:"from,omitempty"`
	To   job.State `json:"to,omitempty"`

	// Attempt is the job's attempt counter at emission time.
	Attempt int `json:"attempt,omitempty"`

	// Kind and Detail carry failure context for TypeRetryScheduled and
	// TypeFailed.
	Kind   job.FailureKind `json:"kind,omitempty"`
	Detail string          `json:"detail,omitempty"`

	// Gap describes the missing input for TypeInputRequired.
	Gap string `json:"gap,omitempty"`

	// NextAttemptAt is set for TypeRetryScheduled.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`

	At time.Time `json:"at"`
}

// Terminal reports whether this event ends the job's lifecycle. Per-job
// subscriptions are closed after a terminal event is delivered.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeCompleted, TypeFailed, TypeCancelled:
		return true
	}
	return false
}

// Package store defines the archive interface for finished jobs. The
// scheduler keeps live jobs in memory; once a job reaches a terminal
// state its outcome is written here so documents survive the in-memory
// retention window. Backends: Redis and Memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
)

var (
	// ErrNotFound is returned when no record exists for the job.
	ErrNotFound = errors.New("store: record not found")

	// ErrQuotaExceeded is returned when a write would exceed the
	// backend's storage quota.
	ErrQuotaExceeded = errors.New("store: quota exceeded")
)

// Record is the archived outcome of one finished job.
type Record struct {
	ID    id.RecordID `json:"id"`
	JobID id.JobID    `json:"job_id"`
	Agent agent.Kind  `json:"agent"`

	// State is the terminal state the job finished in.
	State job.State `json:"state"`

	// Document is the generated output for completed jobs.
	Document string `json:"document,omitempty"`

	// Transcript is kept so a failed generation can be re-run by hand.
	Transcript string `json:"transcript,omitempty"`

	// Kind and Detail describe the failure for failed jobs.
	Kind   job.FailureKind `json:"kind,omitempty"`
	Detail string          `json:"detail,omitempty"`

	// CancelReason is set for cancelled jobs.
	CancelReason string `json:"cancel_reason,omitempty"`

	// Attempts is the invocation count of the job's final stage.
	Attempts int `json:"attempts"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store archives terminal job outcomes.
type Store interface {
	// SaveRecord persists a record, overwriting any previous record for
	// the same job.
	SaveRecord(ctx context.Context, r *Record) error

	// GetRecord retrieves the record for a job. Returns ErrNotFound if
	// the job was never archived or the record has been pruned.
	GetRecord(ctx context.Context, jobID id.JobID) (*Record, error)

	// ListRecords returns up to limit records, newest first. limit <= 0
	// means no limit.
	ListRecords(ctx context.Context, limit int) ([]*Record, error)

	// PruneRecords deletes records finished before the cutoff and
	// returns how many were removed.
	PruneRecords(ctx context.Context, cutoff time.Time) (int, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

package job

import (
	"strings"
	"time"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting for a concurrency slot.
	StateQueued State = "queued"
	// StateTranscribing means the transcription stage is running.
	StateTranscribing State = "transcribing"
	// StateAwaitingGeneration means transcription finished and the job
	// holds its slot while the generation stage is prepared.
	StateAwaitingGeneration State = "awaiting_generation"
	// StateGenerating means the generation stage is running.
	StateGenerating State = "generating"
	// StateAwaitingInput means the generation agent reported a recoverable
	// gap and the job is paused for supplemental input.
	StateAwaitingInput State = "awaiting_input"
	// StateCompleted means the job produced a document.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled.
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Active reports whether a stage adapter is running for this state.
func (s State) Active() bool {
	return s == StateTranscribing || s == StateGenerating
}

// transitions is the full edge set of the job state machine. Self-edges
// (transcribing→transcribing, generating→generating) model retry within
// the same stage.
var transitions = map[State][]State{
	StateQueued:             {StateTranscribing, StateCancelled},
	StateTranscribing:       {StateTranscribing, StateAwaitingGeneration, StateFailed, StateCancelled},
	StateAwaitingGeneration: {StateGenerating, StateCancelled},
	StateGenerating:         {StateGenerating, StateAwaitingInput, StateCompleted, StateFailed, StateCancelled},
	StateAwaitingInput:      {StateGenerating, StateCancelled},
}

// CanTransition reports whether from→to is a declared edge.
// Terminal states have no outgoing edges.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority orders jobs in the queue. Higher values are admitted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Boost returns the next priority level up, capped at Critical.
func (p Priority) Boost() Priority {
	if p >= PriorityCritical {
		return PriorityCritical
	}
	return p + 1
}

// ParsePriority parses a priority name. Unknown names map to Normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	}
	return PriorityNormal
}

// MarshalJSON serializes the priority as its name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses a priority name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	*p = ParsePriority(strings.Trim(string(data), `"`))
	return nil
}

// FailureKind classifies a stage failure for retry decisions.
type FailureKind string

const (
	// FailureTransient covers network errors, timeouts, and server-busy
	// responses. Retried per policy.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers malformed payloads and explicit rejections.
	// Never retried.
	FailurePermanent FailureKind = "permanent"
)

// Result is set once a job reaches Completed or Failed.
type Result struct {
	// Document is the generated document text (Completed only).
	Document string `json:"document,omitempty"`

	// Failure and Detail describe the last stage failure (Failed only).
	Failure FailureKind `json:"failure,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// Job is one unit of scheduled work: one audio recording destined for one
// generation agent. Identity fields are set at creation and never change;
// lifecycle fields are mutated only by the dispatcher that owns the job.
type Job struct {
	ID         id.JobID   `json:"id"`
	Agent      agent.Kind `json:"agent"`
	PayloadRef string     `json:"payload_ref"`
	Priority   Priority   `json:"priority"`

	State            State     `json:"state"`
	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`

	// Attempt counts invocations of the current stage. It starts over
	// when the job enters a new stage and when supplemental input
	// restarts generation.
	Attempt int `json:"attempt"`

	// Transcript is set once the transcribe stage succeeds.
	Transcript string `json:"transcript,omitempty"`

	// Result is set on Completed or Failed.
	Result *Result `json:"result,omitempty"`

	// CancelReason distinguishes user cancellation from grace-period
	// expiry. Set on Cancelled only.
	CancelReason string `json:"cancel_reason,omitempty"`

	// StageTimeout is the per-invocation deadline for this job's stages.
	StageTimeout time.Duration `json:"stage_timeout,omitempty"`
}

// New creates a queued job with a fresh ID.
func New(payloadRef string, kind agent.Kind, priority Priority, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now().UTC()
	return &Job{
		ID:               id.NewJobID(),
		Agent:            kind,
		PayloadRef:       payloadRef,
		Priority:         priority,
		State:            StateQueued,
		Attempt:          0,
		CreatedAt:        now,
		LastTransitionAt: now,
		StageTimeout:     o.StageTimeout,
	}
}

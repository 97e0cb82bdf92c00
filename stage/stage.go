// Package stage defines the adapter interface through which the dispatcher
// invokes external, potentially slow operations: transcription and
// generation.
//
// Adapters classify their own failures into the transient/permanent
// taxonomy and must observe the cancellation token, returning a Cancelled
// outcome promptly once it flips. Adapters never retry; backoff and
// attempt accounting belong to the dispatcher.
package stage

import (
	"context"
	"fmt"

	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

// Name identifies which pipeline stage an adapter serves.
type Name string

const (
	// Transcribe turns audio into text.
	Transcribe Name = "transcribe"
	// Generate turns a transcript into a structured document.
	Generate Name = "generate"
)

// Status is the coarse result class of a stage invocation.
type Status string

const (
	// StatusSuccess means the stage produced output.
	StatusSuccess Status = "success"
	// StatusFailure means the stage failed; Kind says whether a retry
	// may help.
	StatusFailure Status = "failure"
	// StatusNeedsInput means the generation agent found a recoverable
	// gap and wants supplemental input (Generate only).
	StatusNeedsInput Status = "needs_input"
	// StatusCancelled means the adapter observed the cancellation token
	// and aborted.
	StatusCancelled Status = "cancelled"
)

// Outcome is the result of one stage invocation.
type Outcome struct {
	Status Status

	// Output is the stage product: transcript text or document text.
	Output string

	// Kind and Detail describe a failure.
	Kind   job.FailureKind
	Detail string

	// Gap describes what supplemental input is needed (StatusNeedsInput).
	Gap string
}

// Success builds a successful outcome carrying the stage output.
func Success(output string) Outcome {
	return Outcome{Status: StatusSuccess, Output: output}
}

// Failure builds a classified failure outcome.
func Failure(kind job.FailureKind, detail string) Outcome {
	return Outcome{Status: StatusFailure, Kind: kind, Detail: detail}
}

// Failuref is Failure with a formatted detail string.
func Failuref(kind job.FailureKind, format string, args ...any) Outcome {
	return Failure(kind, fmt.Sprintf(format, args...))
}

// NeedsInput builds a recoverable-gap outcome.
func NeedsInput(gap string) Outcome {
	return Outcome{Status: StatusNeedsInput, Gap: gap}
}

// Cancelled builds a cancelled outcome. Distinct from Failure so the
// dispatcher never mistakes an abort for an error.
func Cancelled() Outcome {
	return Outcome{Status: StatusCancelled}
}

// Input carries everything an adapter may need for one invocation.
type Input struct {
	// Stage names which stage is being invoked; middleware uses it for
	// logging and instrumentation.
	Stage Name

	// Job is the job being processed. Adapters must treat it as
	// read-only; only the dispatcher mutates jobs.
	Job *job.Job

	// Transcript is the transcribe-stage output (Generate only).
	Transcript string

	// Supplement is caller-supplied input resolving a reported gap
	// (Generate only, after a NeedsInput round trip).
	Supplement string
}

// Adapter is the narrow contract between the dispatcher and an external
// service. Implementations must honor ctx deadlines and the cancellation
// token, and must classify failures rather than returning raw errors.
type Adapter interface {
	Invoke(ctx context.Context, in Input, tok *cancel.Token) Outcome
}

// Func adapts a plain function to the Adapter interface.
type Func func(ctx context.Context, in Input, tok *cancel.Token) Outcome

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, in Input, tok *cancel.Token) Outcome {
	return f(ctx, in, tok)
}

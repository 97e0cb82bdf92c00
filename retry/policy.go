// Package retry decides whether a failed stage invocation should run again.
//
// The policy is a pure function of (failure kind, attempt count): it has no
// side effects, holds no per-job state, and is unit-testable without a
// dispatcher. Backoff delays come from a pluggable backoff.Strategy.
package retry

import (
	"time"

	"github.com/scribeflow/sched/backoff"
	"github.com/scribeflow/sched/job"
)

// Decision is the outcome of a retry consultation.
type Decision struct {
	// Retry is true when the stage should be re-invoked.
	Retry bool

	// After is the backoff delay before the re-invocation. Zero when
	// Retry is false.
	After time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// Policy maps (failure kind, attempt) to a Decision.
type Policy struct {
	// Limits is the per-kind retry budget. A kind with no entry is never
	// retried.
	Limits map[job.FailureKind]int

	// Backoff computes the delay for a retried attempt.
	Backoff backoff.Strategy
}

// New creates a Policy with the given per-kind limits and backoff strategy.
// A nil strategy falls back to backoff.DefaultStrategy().
func New(limits map[job.FailureKind]int, bo backoff.Strategy) *Policy {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	return &Policy{Limits: limits, Backoff: bo}
}

// Default returns the standard policy: transient failures retried 3 times,
// permanent failures never, jittered exponential backoff.
func Default() *Policy {
	return New(map[job.FailureKind]int{
		job.FailureTransient: 3,
	}, backoff.DefaultStrategy())
}

// Decide returns the decision for the given failure on the given attempt.
// attempt is 1-indexed: the first failed invocation consults Decide with
// attempt == 1.
func (p *Policy) Decide(kind job.FailureKind, attempt int) Decision {
	if kind == job.FailurePermanent {
		return GiveUp
	}

	limit, ok := p.Limits[kind]
	if !ok || attempt >= limit {
		return GiveUp
	}

	return Decision{
		Retry: true,
		After: p.Backoff.Delay(attempt),
	}
}

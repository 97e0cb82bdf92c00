// Package cancel provides cooperative cancellation tokens for jobs.
//
// Every live job has one token in the registry. Any stage can observe
// "should I stop" by polling Token.Cancelled or selecting on Token.Done.
// Cancellation is cooperative, not preemptive: the dispatcher never kills
// adapter work it does not control; adapters are contractually required to
// observe the token and return promptly.
package cancel

import (
	"sync"

	"github.com/scribeflow/sched/id"
)

// Reason records why a token was cancelled.
type Reason string

const (
	// ReasonUser is an explicit cancel request from the caller.
	ReasonUser Reason = "user"
	// ReasonInputTimeout means the input grace period expired while the
	// job was awaiting supplemental input.
	ReasonInputTimeout Reason = "input-timeout"
	// ReasonShutdown means the dispatcher is stopping.
	ReasonShutdown Reason = "shutdown"
)

// Token is the cancellation capability for one job. Stages may poll
// Cancelled or subscribe via Done; both observe the same single flip.
type Token struct {
	jobID id.JobID

	mu     sync.Mutex
	done   chan struct{}
	reason Reason
	closed bool
}

// JobID returns the job this token belongs to.
func (t *Token) JobID() id.JobID { return t.jobID }

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} { return t.done }

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Reason returns the cancellation reason, or "" if not cancelled.
func (t *Token) Reason() Reason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// cancel flips the token exactly once. Later calls are no-ops.
func (t *Token) cancel(reason Reason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.reason = reason
	close(t.done)
}

// Registry tracks live tokens per job. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Create returns the token for the given job, creating it if needed.
func (r *Registry) Create(jobID id.JobID) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := jobID.String()
	if t, ok := r.tokens[key]; ok {
		return t
	}
	t := &Token{jobID: jobID, done: make(chan struct{})}
	r.tokens[key] = t
	return t
}

// Get returns the token for the given job, if one exists.
func (r *Registry) Get(jobID id.JobID) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[jobID.String()]
	return t, ok
}

// Cancel marks the job's token cancelled. Idempotent: repeated calls have
// the same observable effect as one. Returns false if no token exists.
func (r *Registry) Cancel(jobID id.JobID, reason Reason) bool {
	r.mu.Lock()
	t, ok := r.tokens[jobID.String()]
	r.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel(reason)
	return true
}

// Remove drops the job's token. Called once the job reaches a terminal
// state; the token stays observable by anyone still holding it.
func (r *Registry) Remove(jobID id.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, jobID.String())
}

// Len returns the number of live tokens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/scribeflow/sched/agent"
)

// AgentLimit configures admission limits for a single agent kind, on top
// of the pool-wide slot count.
type AgentLimit struct {
	// Agent is the agent kind this limit applies to.
	Agent agent.Kind

	// MaxConcurrent limits simultaneous jobs for this agent. Zero means
	// no agent-specific concurrency limit.
	MaxConcurrent int

	// Rate is the maximum sustained admissions per second for this
	// agent. Zero disables rate limiting.
	Rate float64

	// Burst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if Rate is set but Burst is zero.
	Burst int
}

// agentState tracks runtime state for one agent kind.
type agentState struct {
	limit   AgentLimit
	limiter *rate.Limiter
	active  int
}

// Slot is a concurrency permit. It must be returned via Release exactly
// once; extra releases are ignored.
type Slot struct {
	agent    agent.Kind
	released bool
}

// Limiter bounds how many jobs may be actively processed at once, with
// optional per-agent concurrency caps and token-bucket rate limits.
// TryAcquire and Release are safe under concurrent calls from multiple
// dispatch loops sharing one limiter.
type Limiter struct {
	mu     sync.Mutex
	max    int
	active int
	agents map[agent.Kind]*agentState
}

// NewLimiter creates a limiter with the given pool-wide slot count.
// max <= 0 is treated as 1.
func NewLimiter(max int, limits ...AgentLimit) *Limiter {
	if max <= 0 {
		max = 1
	}
	l := &Limiter{
		max:    max,
		agents: make(map[agent.Kind]*agentState, len(limits)),
	}
	for _, al := range limits {
		l.agents[al.Agent] = newAgentState(al)
	}
	return l
}

func newAgentState(al AgentLimit) *agentState {
	st := &agentState{limit: al}
	if al.Rate > 0 {
		burst := al.Burst
		if burst <= 0 {
			burst = 1
		}
		st.limiter = rate.NewLimiter(rate.Limit(al.Rate), burst)
	}
	return st
}

// TryAcquire returns a slot immediately if one is free and the agent's
// limits allow it, else reports unavailable. Never blocks.
func (l *Limiter) TryAcquire(kind agent.Kind) (*Slot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active >= l.max {
		return nil, false
	}

	st := l.agents[kind]
	if st != nil {
		if st.limiter != nil && !st.limiter.Allow() {
			return nil, false
		}
		if st.limit.MaxConcurrent > 0 && st.active >= st.limit.MaxConcurrent {
			return nil, false
		}
		st.active++
	}

	l.active++
	return &Slot{agent: kind}, true
}

// Release frees the slot. Releasing a slot twice is a no-op.
func (l *Limiter) Release(s *Slot) {
	if s == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	if l.active > 0 {
		l.active--
	}
	if st := l.agents[s.agent]; st != nil && st.active > 0 {
		st.active--
	}
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// AgentActive returns the number of slots held for the given agent kind,
// or zero if the agent has no configured limit.
func (l *Limiter) AgentActive(kind agent.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st := l.agents[kind]; st != nil {
		return st.active
	}
	return 0
}

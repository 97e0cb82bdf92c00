// Package queue provides the priority queue and concurrency limiter that
// gate job admission.
//
// # Queue
//
// [Queue] is an ordered holding area for jobs awaiting a slot. Ordering is
// priority-then-FIFO: Critical > High > Normal > Low, arrival order within
// a level. Capacity is bounded; [Queue.Push] returns [ErrFull] rather than
// dropping work, so callers see backpressure synchronously.
//
// A job queued longer than the configured age threshold earns one
// effective-priority boost each time a younger, higher-priority job is
// popped past it. The boost is queue-local bookkeeping: the job's own
// Priority field never changes.
//
// # Limiter
//
// [Limiter] hands out at most maxConcurrent slots via the non-blocking
// [Limiter.TryAcquire]; the dispatcher reacts to queue and slot events
// rather than busy-waiting. Optional [AgentLimit] entries add per-agent
// concurrency caps and token-bucket rate limits (golang.org/x/time/rate),
// useful when one slow downstream model should not absorb every slot:
//
//	queue.NewLimiter(2,
//	    queue.AgentLimit{Agent: agent.KindEchoReport, MaxConcurrent: 1},
//	    queue.AgentLimit{Agent: agent.KindSummary, Rate: 5, Burst: 10},
//	)
package queue

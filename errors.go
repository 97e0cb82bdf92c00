package sched

import "errors"

// Sentinel errors returned by the public Dispatcher API. Callers use
// errors.Is to branch on them.
var (
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	// The caller owns backpressure: retry later or surface the rejection.
	ErrQueueFull = errors.New("sched: queue full")

	// ErrJobNotFound is returned when the referenced job is unknown or
	// has been evicted after the retention window.
	ErrJobNotFound = errors.New("sched: job not found")

	// ErrInvalidState is returned by SupplyInput when the job is not
	// awaiting supplemental input.
	ErrInvalidState = errors.New("sched: job not awaiting input")

	// ErrNotStarted is returned by Submit before Start has been called.
	ErrNotStarted = errors.New("sched: dispatcher not started")

	// ErrClosed is returned by Submit after Stop.
	ErrClosed = errors.New("sched: dispatcher closed")

	// ErrNoAdapter is returned by New when the transcriber or generator
	// adapter is missing.
	ErrNoAdapter = errors.New("sched: transcriber and generator adapters are required")
)

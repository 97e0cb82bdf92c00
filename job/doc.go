// Package job defines the job entity, its state machine, and priorities.
//
// # Job Entity
//
// A [Job] represents one audio recording on its way to becoming a
// structured document. It carries an opaque payload reference (the core
// never inspects audio bytes) and progresses through a state machine:
//
//	queued → transcribing → awaiting_generation → generating → completed
//	transcribing → transcribing            (retry after backoff)
//	generating → generating                (retry after backoff)
//	generating → awaiting_input → generating
//	any non-terminal → cancelled
//	transcribing | generating → failed     (retries exhausted or permanent)
//
// Terminal states (completed, failed, cancelled) are final: the
// dispatcher never mutates a job after it reaches one.
//
// # Priorities
//
// [Priority] orders queued jobs: Critical > High > Normal > Low, FIFO
// within a level. The queue may boost a starved job's effective priority;
// the job's own Priority field is never rewritten.
//
// # Failure taxonomy
//
// Stage adapters classify their failures as [FailureTransient] or
// [FailurePermanent]; the retry policy consumes this classification and
// never guesses from error strings.
package job

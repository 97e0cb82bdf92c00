package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
)

// ErrFull is returned by Push when the queue is at capacity. Callers must
// handle backpressure; the queue never silently drops work.
var ErrFull = errors.New("queue: full")

// entry wraps a queued job with its ordering keys. effective starts equal
// to the job's priority and may be boosted; the job itself is never
// rewritten.
type entry struct {
	job       *job.Job
	effective job.Priority
	seq       uint64
	index     int
}

// entryHeap orders by effective priority (descending), then arrival
// sequence (ascending) for FIFO within a level.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].effective != h[j].effective {
		return h[i].effective > h[j].effective
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry) //nolint:errcheck // heap only ever holds *entry
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the ordered holding area for jobs awaiting a concurrency slot.
// Safe for concurrent use.
type Queue struct {
	mu         sync.Mutex
	maxDepth   int
	staleAfter time.Duration
	seq        uint64
	heap       entryHeap
	byID       map[string]*entry
}

// New creates a queue. maxDepth <= 0 means unbounded. staleAfter is the
// queued-age threshold past which a skipped job earns a priority boost;
// zero disables boosting.
func New(maxDepth int, staleAfter time.Duration) *Queue {
	return &Queue{
		maxDepth:   maxDepth,
		staleAfter: staleAfter,
		byID:       make(map[string]*entry),
	}
}

// Push inserts a job. Returns ErrFull if maxDepth would be exceeded.
func (q *Queue) Push(j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxDepth > 0 && len(q.heap) >= q.maxDepth {
		return ErrFull
	}

	q.seq++
	e := &entry{job: j, effective: j.Priority, seq: q.seq}
	heap.Push(&q.heap, e)
	q.byID[j.ID.String()] = e
	return nil
}

// Pop removes and returns the highest-priority job, FIFO within a level,
// or nil if the queue is empty.
//
// Before handing out the winner, every job that arrived earlier, loses on
// priority, and has been queued longer than staleAfter is boosted one
// effective level. A boosted job that reaches the winner's level wins the
// next pop on the FIFO tie-break, so sustained high-priority load cannot
// starve older work indefinitely.
func (q *Queue) Pop() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}

	top := q.heap[0]

	if q.staleAfter > 0 {
		now := time.Now().UTC()
		boosted := false
		for _, e := range q.heap {
			if e == top {
				continue
			}
			if e.seq < top.seq && e.effective < top.effective && now.Sub(e.job.CreatedAt) >= q.staleAfter {
				e.effective = e.effective.Boost()
				boosted = true
			}
		}
		if boosted {
			heap.Init(&q.heap)
			top = q.heap[0]
		}
	}

	e := heap.Pop(&q.heap).(*entry) //nolint:errcheck // heap only ever holds *entry
	delete(q.byID, e.job.ID.String())
	return e.job
}

// Remove drops a not-yet-popped job from the queue. Returns false if the
// job already left the queue; removal of an absent job is not an error.
func (q *Queue) Remove(jobID id.JobID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[jobID.String()]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.index)
	delete(q.byID, jobID.String())
	return true
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

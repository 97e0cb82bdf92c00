package event

import (
	"sync"

	"github.com/scribeflow/sched/id"
)

// defaultBuffer is the per-subscription channel depth. Publish never
// blocks: a subscriber that falls this far behind starts losing events.
const defaultBuffer = 64

// Subscription is a read handle on a stream of events. The channel is
// closed when the subscription ends: explicitly via Close, after a
// terminal event on a per-job subscription, or when the bus shuts down.
type Subscription struct {
	ch     chan Event
	bus    *Bus
	jobID  id.JobID
	all    bool
	closed bool
}

// Events returns the receive channel for this subscription.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus fans out job lifecycle events to subscribers. Delivery is
// best-effort: slow subscribers drop events rather than stall the
// scheduler loop.
type Bus struct {
	mu       sync.Mutex
	byJob    map[id.JobID][]*Subscription
	firehose []*Subscription
	dropped  uint64
	closed   bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{byJob: make(map[id.JobID][]*Subscription)}
}

// Subscribe returns a subscription delivering events for one job. After
// a terminal event is delivered the channel is closed automatically.
func (b *Bus) Subscribe(jobID id.JobID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, defaultBuffer), bus: b, jobID: jobID}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.byJob[jobID] = append(b.byJob[jobID], sub)
	return sub
}

// SubscribeAll returns a firehose subscription delivering every event on
// the bus. The caller must Close it when done.
func (b *Bus) SubscribeAll() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, defaultBuffer), bus: b, all: true}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.firehose = append(b.firehose, sub)
	return sub
}

// Publish delivers an event to the job's subscribers and the firehose.
// Never blocks. Terminal events close per-job subscriptions after
// delivery.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.byJob[evt.JobID] {
		b.deliver(sub, evt)
	}
	for _, sub := range b.firehose {
		b.deliver(sub, evt)
	}

	if evt.Terminal() {
		for _, sub := range b.byJob[evt.JobID] {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.byJob, evt.JobID)
	}
}

// Dropped returns the number of events discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close shuts the bus down, closing every subscription channel. Publish
// becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.byJob {
		for _, sub := range subs {
			sub.closed = true
			close(sub.ch)
		}
	}
	b.byJob = make(map[id.JobID][]*Subscription)

	for _, sub := range b.firehose {
		sub.closed = true
		close(sub.ch)
	}
	b.firehose = nil
}

// deliver pushes the event without blocking. Caller holds b.mu.
func (b *Bus) deliver(sub *Subscription, evt Event) {
	select {
	case sub.ch <- evt:
	default:
		b.dropped++
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)

	if s.all {
		b.firehose = remove(b.firehose, s)
		return
	}

	subs := remove(b.byJob[s.jobID], s)
	if len(subs) == 0 {
		delete(b.byJob, s.jobID)
	} else {
		b.byJob[s.jobID] = subs
	}
}

func remove(subs []*Subscription, target *Subscription) []*Subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

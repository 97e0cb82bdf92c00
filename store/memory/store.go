// Package memory implements store.Store with an in-process map. Suited
// to tests and single-process deployments that can afford to lose the
// archive on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithMaxBytes caps the total size of archived documents and
// transcripts. Writes that would exceed the cap return
// store.ErrQuotaExceeded. Zero means unlimited.
func WithMaxBytes(n int64) Option {
	return func(s *Store) { s.maxBytes = n }
}

// Store is an in-memory record archive.
type Store struct {
	mu       sync.RWMutex
	records  map[id.JobID]*store.Record
	used     int64
	maxBytes int64
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{records: make(map[id.JobID]*store.Record)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func recordSize(r *store.Record) int64 {
	return int64(len(r.Document) + len(r.Transcript) + len(r.Detail))
}

// SaveRecord persists a record, overwriting any previous record for the
// same job.
func (s *Store) SaveRecord(_ context.Context, r *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := recordSize(r)
	var prev int64
	if old, ok := s.records[r.JobID]; ok {
		prev = recordSize(old)
	}
	if s.maxBytes > 0 && s.used-prev+size > s.maxBytes {
		return store.ErrQuotaExceeded
	}

	cp := *r
	s.records[r.JobID] = &cp
	s.used += size - prev
	return nil
}

// GetRecord retrieves the record for a job.
func (s *Store) GetRecord(_ context.Context, jobID id.JobID) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRecords returns up to limit records, newest first.
func (s *Store) ListRecords(_ context.Context, limit int) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Record, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRecords deletes records finished before the cutoff.
func (s *Store) PruneRecords(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for jobID, r := range s.records {
		if r.FinishedAt.Before(cutoff) {
			s.used -= recordSize(r)
			delete(s.records, jobID)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close discards all records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[id.JobID]*store.Record)
	s.used = 0
	return nil
}

// UsedBytes reports the current document quota consumption.
func (s *Store) UsedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

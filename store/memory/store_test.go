package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/store"
	"github.com/scribeflow/sched/store/memory"
)

func newRecord(doc string, finished time.Time) *store.Record {
	return &store.Record{
		ID:         id.NewRecordID(),
		JobID:      id.NewJobID(),
		Agent:      agent.KindClinicLetter,
		State:      job.StateCompleted,
		Document:   doc,
		Attempts:   1,
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r := newRecord("Dear Dr Smith,", time.Now())
	if err := s.SaveRecord(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRecord(ctx, r.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Document != r.Document {
		t.Errorf("Document = %q", got.Document)
	}

	// Returned record is a copy; mutating it must not affect the store.
	got.Document = "mutated"
	again, _ := s.GetRecord(ctx, r.JobID)
	if again.Document != r.Document {
		t.Error("store returned a shared record pointer")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := memory.New()
	_, err := s.GetRecord(context.Background(), id.NewJobID())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r := newRecord("first", time.Now())
	s.SaveRecord(ctx, r)

	r2 := *r
	r2.Document = "second"
	if err := s.SaveRecord(ctx, &r2); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, _ := s.GetRecord(ctx, r.JobID)
	if got.Document != "second" {
		t.Errorf("Document = %q, want second", got.Document)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	now := time.Now()
	old := newRecord("old", now.Add(-time.Hour))
	mid := newRecord("mid", now.Add(-time.Minute))
	fresh := newRecord("fresh", now)
	for _, r := range []*store.Record{old, fresh, mid} {
		s.SaveRecord(ctx, r)
	}

	got, err := s.ListRecords(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Document != "fresh" || got[1].Document != "mid" || got[2].Document != "old" {
		t.Errorf("order = [%s %s %s]", got[0].Document, got[1].Document, got[2].Document)
	}

	limited, _ := s.ListRecords(ctx, 2)
	if len(limited) != 2 || limited[0].Document != "fresh" {
		t.Errorf("limited list wrong: %v", limited)
	}
}

func TestStore_PruneRemovesOldRecords(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	now := time.Now()
	old := newRecord("old", now.Add(-2*time.Hour))
	fresh := newRecord("fresh", now)
	s.SaveRecord(ctx, old)
	s.SaveRecord(ctx, fresh)

	n, err := s.PruneRecords(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}

	if _, err := s.GetRecord(ctx, old.JobID); !errors.Is(err, store.ErrNotFound) {
		t.Error("old record should be gone")
	}
	if _, err := s.GetRecord(ctx, fresh.JobID); err != nil {
		t.Errorf("fresh record should survive: %v", err)
	}
}

func TestStore_QuotaEnforced(t *testing.T) {
	s := memory.New(memory.WithMaxBytes(10))
	ctx := context.Background()

	if err := s.SaveRecord(ctx, newRecord("12345", time.Now())); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err := s.SaveRecord(ctx, newRecord("123456789", time.Now()))
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Errorf("err = %v, want ErrQuotaExceeded", err)
	}

	// Prune frees quota.
	s.PruneRecords(ctx, time.Now().Add(time.Second))
	if err := s.SaveRecord(ctx, newRecord("123456789", time.Now())); err != nil {
		t.Errorf("save after prune: %v", err)
	}
}

func TestStore_QuotaCountsOverwriteDelta(t *testing.T) {
	s := memory.New(memory.WithMaxBytes(10))
	ctx := context.Background()

	r := newRecord("1234567890", time.Now())
	if err := s.SaveRecord(ctx, r); err != nil {
		t.Fatalf("save at quota: %v", err)
	}

	// Overwriting the same job with an equal-size document must not
	// double-count.
	r2 := *r
	r2.Document = "abcdefghij"
	if err := s.SaveRecord(ctx, &r2); err != nil {
		t.Errorf("same-size overwrite: %v", err)
	}
	if s.UsedBytes() != 10 {
		t.Errorf("UsedBytes = %d, want 10", s.UsedBytes())
	}
}

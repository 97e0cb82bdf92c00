package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/hook"
	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/stage"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnStageStarted(_ context.Context, _ *job.Job, _ stage.Name) error {
	e.calls = append(e.calls, "OnStageStarted")
	return nil
}

func (e *allHooksExt) OnRetryScheduled(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.calls = append(e.calls, "OnRetryScheduled")
	return nil
}

func (e *allHooksExt) OnInputRequired(_ context.Context, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnInputRequired")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, _ job.FailureKind, _ string) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobCancelled(_ context.Context, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnJobCancelled")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// terminalOnlyExt only implements the terminal hooks.
type terminalOnlyExt struct {
	calls []string
}

func (e *terminalOnlyExt) Name() string { return "terminal-only" }

func (e *terminalOnlyExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *terminalOnlyExt) OnJobFailed(_ context.Context, _ *job.Job, _ job.FailureKind, _ string) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func testJob() *job.Job {
	return job.New("recordings/visit.wav", agent.KindClinicLetter, job.PriorityNormal)
}

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	term := &terminalOnlyExt{}
	r.Register(all)
	r.Register(term)

	ctx := context.Background()
	j := testJob()

	// Both implement OnJobCompleted → both called.
	r.EmitJobCompleted(ctx, j, time.Second)
	if len(all.calls) != 1 || all.calls[0] != "OnJobCompleted" {
		t.Fatalf("all: expected [OnJobCompleted], got %v", all.calls)
	}
	if len(term.calls) != 1 || term.calls[0] != "OnJobCompleted" {
		t.Fatalf("term: expected [OnJobCompleted], got %v", term.calls)
	}

	// Only all implements OnJobEnqueued → term not called.
	r.EmitJobEnqueued(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobEnqueued" {
		t.Fatalf("all: expected OnJobEnqueued as 2nd, got %v", all.calls)
	}
	if len(term.calls) != 1 {
		t.Fatalf("term: should still have 1 call, got %v", term.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := testJob()

	r.EmitJobEnqueued(ctx, j)
	r.EmitStageStarted(ctx, j, stage.Transcribe)
	r.EmitRetryScheduled(ctx, j, 1, time.Now())
	r.EmitInputRequired(ctx, j, "missing mrn")
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, job.FailurePermanent, "bad audio")
	r.EmitJobCancelled(ctx, j, "user")
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobEnqueued", "OnStageStarted", "OnRetryScheduled",
		"OnInputRequired", "OnJobCompleted", "OnJobFailed",
		"OnJobCancelled", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	r.Register(&allHooksExt{})

	ctx := context.Background()

	// Must not panic, and must still call later extensions.
	r.EmitJobEnqueued(ctx, testJob())
	r.EmitShutdown(ctx)
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	r := hook.NewRegistry(slog.Default())

	var order []string
	first := &orderedExt{name: "first", order: &order}
	second := &orderedExt{name: "second", order: &order}
	r.Register(first)
	r.Register(second)

	r.EmitJobEnqueued(context.Background(), testJob())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("notification order = %v, want [first second]", order)
	}
}

type orderedExt struct {
	name  string
	order *[]string
}

func (e *orderedExt) Name() string { return e.name }

func (e *orderedExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	*e.order = append(*e.order, e.name)
	return nil
}

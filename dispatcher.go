package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/backoff"
	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/event"
	"github.com/scribeflow/sched/hook"
	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/queue"
	"github.com/scribeflow/sched/retry"
	"github.com/scribeflow/sched/stage"
	"github.com/scribeflow/sched/store"
	"github.com/scribeflow/sched/store/memory"
)

// scopeName is the instrumentation scope for dispatcher telemetry.
const scopeName = "github.com/scribeflow/sched"

// resumption is a job re-entering processing after supplemental input
// arrived. Resumed jobs are admitted ahead of the queue: they already
// earned a slot once and hold partial work.
type resumption struct {
	j          *job.Job
	supplement string
}

// parked tracks a job awaiting supplemental input: what is missing and
// the grace timer that cancels it if no input arrives.
type parked struct {
	gap   string
	timer *time.Timer
}

// Dispatcher owns the job lifecycle: admission, stage execution, retry,
// cancellation, and archival. One dispatcher serves one process.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	transcriber stage.Adapter
	generator   stage.Adapter
	middleware  []stage.Middleware

	queue   *queue.Queue
	limiter *queue.Limiter
	tokens  *cancel.Registry
	retry   *retry.Policy
	bus     *event.Bus
	hooks   *hook.Registry
	archive store.Store

	// Option staging, consumed by New.
	agentLimits    []queue.AgentLimit
	backoff        backoff.Strategy
	extensions     []hook.Extension
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu       sync.Mutex
	jobs     map[string]*job.Job
	waiting  map[string]*parked
	resume   []resumption
	overflow []*job.Job
	running  bool
	closed   bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a dispatcher. Transcriber and generator adapters are
// required; everything else has defaults.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		jobs:    make(map[string]*job.Job),
		waiting: make(map[string]*parked),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.transcriber == nil || d.generator == nil {
		return nil, ErrNoAdapter
	}

	if d.backoff == nil {
		d.backoff = backoff.NewExponentialWithJitter(d.cfg.BackoffBase, d.cfg.BackoffMax)
	}
	if d.retry == nil {
		d.retry = retry.New(map[job.FailureKind]int{
			job.FailureTransient: d.cfg.TransientRetryLimit,
		}, d.backoff)
	}
	if d.archive == nil {
		d.archive = memory.New()
	}

	d.queue = queue.New(d.cfg.MaxQueueDepth, d.cfg.StaleAfter)
	d.limiter = queue.NewLimiter(d.cfg.MaxConcurrent, d.agentLimits...)
	d.tokens = cancel.NewRegistry()
	d.bus = event.NewBus()

	d.hooks = hook.NewRegistry(d.logger)
	for _, e := range d.extensions {
		d.hooks.Register(e)
	}

	// Default middleware stack: recover → tracing → metrics → logging,
	// then user middleware.
	tracingMw := stage.Tracing()
	if d.tracerProvider != nil {
		tracingMw = stage.TracingWithTracer(d.tracerProvider.Tracer(scopeName))
	}
	metricsMw := stage.Metrics()
	if d.meterProvider != nil {
		metricsMw = stage.MetricsWithMeter(d.meterProvider.Meter(scopeName))
	}
	mws := []stage.Middleware{
		stage.Recover(d.logger),
		tracingMw,
		metricsMw,
		stage.Logging(d.logger),
	}
	mws = append(mws, d.middleware...)

	d.transcriber = stage.Wrap(d.transcriber, mws...)
	d.generator = stage.Wrap(d.generator, mws...)

	return d, nil
}

// Start launches the dispatch and janitor loops. Idempotent.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.running {
		return nil
	}
	d.running = true

	d.logger.Info("dispatcher starting",
		slog.Int("max_concurrent", d.cfg.MaxConcurrent),
		slog.Int("max_queue_depth", d.cfg.MaxQueueDepth),
	)

	d.wg.Add(2)
	go d.dispatchLoop()
	go d.janitorLoop()
	return nil
}

// Stop shuts the dispatcher down: queued and parked jobs are cancelled
// immediately, active jobs are cancelled cooperatively and waited for
// until ctx expires. Idempotent.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.running

	type liveJob struct {
		j     *job.Job
		state job.State
	}
	var live []liveJob
	for _, j := range d.jobs {
		if !j.State.Terminal() {
			live = append(live, liveJob{j: j, state: j.State})
		}
	}
	for _, p := range d.waiting {
		p.timer.Stop()
	}
	d.resume = nil
	d.overflow = nil
	d.mu.Unlock()

	d.logger.Info("dispatcher stopping", slog.Int("live_jobs", len(live)))

	for _, lj := range live {
		d.tokens.Cancel(lj.j.ID, cancel.ReasonShutdown)
		if d.queue.Remove(lj.j.ID) || lj.state == job.StateAwaitingInput {
			d.finalizeCancelled(lj.j, cancel.ReasonShutdown)
		}
	}

	if started {
		close(d.stopCh)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.logger.Info("dispatcher stopped gracefully")
		case <-ctx.Done():
			d.logger.Warn("dispatcher shutdown timed out")
		}
	}

	d.hooks.EmitShutdown(ctx)
	d.bus.Close()
	return nil
}

// Submit creates a job and admits it to the queue. Returns ErrQueueFull
// when the queue is at capacity; the job is not accepted in that case.
func (d *Dispatcher) Submit(ctx context.Context, payloadRef string, kind agent.Kind, priority job.Priority, opts ...job.Option) (*job.Job, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if !d.running {
		d.mu.Unlock()
		return nil, ErrNotStarted
	}
	d.mu.Unlock()

	if len(opts) == 0 && d.cfg.StageTimeout > 0 {
		opts = []job.Option{job.WithStageTimeout(d.cfg.StageTimeout)}
	}
	j := job.New(payloadRef, kind, priority, opts...)

	if err := d.queue.Push(j); err != nil {
		if errors.Is(err, queue.ErrFull) {
			return nil, ErrQueueFull
		}
		return nil, err
	}

	d.mu.Lock()
	d.jobs[j.ID.String()] = j
	d.mu.Unlock()
	d.tokens.Create(j.ID)

	d.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("agent", string(j.Agent)),
		slog.String("priority", j.Priority.String()),
	)
	d.publish(j, event.Event{Type: event.TypeEnqueued})
	d.hooks.EmitJobEnqueued(ctx, j)
	d.nudge()

	return d.snapshotOf(j), nil
}

// Get returns a snapshot of the job. Terminal jobs remain queryable for
// the retention window.
func (d *Dispatcher) Get(jobID id.JobID) (*job.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs[jobID.String()]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// List returns snapshots of all retained jobs, unordered.
func (d *Dispatcher) List() []*job.Job {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*job.Job, 0, len(d.jobs))
	for _, j := range d.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

// Gap returns what supplemental input a parked job is waiting for.
func (d *Dispatcher) Gap(jobID id.JobID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.jobs[jobID.String()]; !ok {
		return "", ErrJobNotFound
	}
	p, ok := d.waiting[jobID.String()]
	if !ok {
		return "", ErrInvalidState
	}
	return p.gap, nil
}

// Subscribe returns a per-job event subscription. The channel closes
// after the job's terminal event.
func (d *Dispatcher) Subscribe(jobID id.JobID) *event.Subscription {
	return d.bus.Subscribe(jobID)
}

// SubscribeAll returns a firehose subscription over every job.
func (d *Dispatcher) SubscribeAll() *event.Subscription {
	return d.bus.SubscribeAll()
}

// Cancel requests cancellation of a job. Cancelling a terminal job is a
// no-op; repeated calls have the same observable effect as one.
// Queued and parked jobs are cancelled immediately; active jobs are
// cancelled cooperatively through their token.
func (d *Dispatcher) Cancel(_ context.Context, jobID id.JobID, reason cancel.Reason) error {
	if reason == "" {
		reason = cancel.ReasonUser
	}

	d.mu.Lock()
	j, ok := d.jobs[jobID.String()]
	if !ok {
		d.mu.Unlock()
		return ErrJobNotFound
	}
	if j.State.Terminal() {
		d.mu.Unlock()
		return nil
	}
	state := j.State
	if p, parked := d.waiting[jobID.String()]; parked {
		p.timer.Stop()
		delete(d.waiting, jobID.String())
	}
	d.removeResume(jobID)
	inOverflow := d.removeOverflow(jobID)
	d.mu.Unlock()

	d.tokens.Cancel(jobID, reason)

	switch {
	case state == job.StateQueued:
		// Only finalize if the job is still verifiably idle; otherwise
		// it is between pop and run, and the token handles it.
		if d.queue.Remove(jobID) || inOverflow {
			d.finalizeCancelled(j, reason)
		}
	case state == job.StateAwaitingInput:
		d.finalizeCancelled(j, reason)
	}
	// Active states: the run goroutine observes the token and finalizes.
	return nil
}

// SupplyInput resolves a reported gap with supplemental information and
// re-admits the job ahead of the queue. The job must be awaiting input.
func (d *Dispatcher) SupplyInput(_ context.Context, jobID id.JobID, supplement string) error {
	d.mu.Lock()
	j, ok := d.jobs[jobID.String()]
	if !ok {
		d.mu.Unlock()
		return ErrJobNotFound
	}
	p, parked := d.waiting[jobID.String()]
	if !parked || j.State != job.StateAwaitingInput {
		d.mu.Unlock()
		return ErrInvalidState
	}
	p.timer.Stop()
	delete(d.waiting, jobID.String())
	d.resume = append(d.resume, resumption{j: j, supplement: supplement})
	d.mu.Unlock()

	d.logger.Info("input supplied", slog.String("job_id", jobID.String()))
	d.nudge()
	return nil
}

// QueueDepth returns the number of jobs waiting for a slot.
func (d *Dispatcher) QueueDepth() int { return d.queue.Len() }

// Active returns the number of jobs holding a concurrency slot.
func (d *Dispatcher) Active() int { return d.limiter.Active() }

// ───────────────────────────────────────────────────────────────────────
// Dispatch loop
// ───────────────────────────────────────────────────────────────────────

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		d.admit()
		select {
		case <-d.stopCh:
			return
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// admit starts as many jobs as free slots allow: resumed jobs first,
// then agent-capped leftovers, then the priority queue.
func (d *Dispatcher) admit() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	resume := d.resume
	d.resume = nil
	overflow := d.overflow
	d.overflow = nil
	d.mu.Unlock()

	var stillWaiting []resumption
	for _, r := range resume {
		slot, ok := d.limiter.TryAcquire(r.j.Agent)
		if !ok {
			stillWaiting = append(stillWaiting, r)
			continue
		}
		d.start(r.j, slot, r.supplement)
	}

	// Jobs popped earlier but blocked on a per-agent limit.
	var capped []*job.Job
	for _, j := range overflow {
		slot, ok := d.limiter.TryAcquire(j.Agent)
		if !ok {
			capped = append(capped, j)
			continue
		}
		d.start(j, slot, "")
	}

	for d.limiter.Active() < d.cfg.MaxConcurrent {
		j := d.queue.Pop()
		if j == nil {
			break
		}
		slot, ok := d.limiter.TryAcquire(j.Agent)
		if !ok {
			capped = append(capped, j)
			continue
		}
		d.start(j, slot, "")
	}

	if len(stillWaiting) > 0 || len(capped) > 0 {
		d.mu.Lock()
		d.resume = append(stillWaiting, d.resume...)
		d.overflow = append(capped, d.overflow...)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) start(j *job.Job, slot *queue.Slot, supplement string) {
	d.wg.Add(1)
	go d.run(j, slot, supplement)
}

// run executes one job through its remaining stages while holding a
// concurrency slot. The slot is held across the transcribe→generate
// handoff and across in-slot retries; it is released on completion,
// failure, cancellation, or parking for input.
func (d *Dispatcher) run(j *job.Job, slot *queue.Slot, supplement string) {
	defer d.wg.Done()
	defer func() {
		d.limiter.Release(slot)
		d.nudge()
	}()

	tok := d.tokens.Create(j.ID)
	if tok.Cancelled() {
		d.finalizeCancelled(j, tok.Reason())
		return
	}

	if j.Transcript == "" {
		transcript, ok := d.runTranscribe(j, tok)
		if !ok {
			return
		}
		d.mu.Lock()
		j.Transcript = transcript
		d.mu.Unlock()
		d.transition(j, job.StateAwaitingGeneration)
	}

	d.runGenerate(j, tok, supplement)
}

// runTranscribe drives the transcribe stage with in-slot retry. Returns
// the transcript and true on success; false means the job was finalized.
func (d *Dispatcher) runTranscribe(j *job.Job, tok *cancel.Token) (string, bool) {
	for attempt := 1; ; attempt++ {
		d.transition(j, job.StateTranscribing)
		out := d.invoke(d.transcriber, stage.Transcribe, attempt, j, tok, "")

		switch out.Status {
		case stage.StatusSuccess:
			return out.Output, true

		case stage.StatusCancelled:
			d.finalizeCancelled(j, tok.Reason())
			return "", false

		case stage.StatusNeedsInput:
			// Transcription has no gap protocol; treat as a broken adapter.
			d.finalizeFailed(j, job.FailurePermanent, "transcribe stage reported needs_input")
			return "", false

		default:
			if !d.retryOrFail(j, tok, out, attempt) {
				return "", false
			}
		}
	}
}

// runGenerate drives the generate stage with in-slot retry. NeedsInput
// parks the job and releases the slot; the supplement is consumed by the
// first invocation after resumption.
func (d *Dispatcher) runGenerate(j *job.Job, tok *cancel.Token, supplement string) {
	for attempt := 1; ; attempt++ {
		d.transition(j, job.StateGenerating)
		out := d.invoke(d.generator, stage.Generate, attempt, j, tok, supplement)

		switch out.Status {
		case stage.StatusSuccess:
			d.finalizeCompleted(j, out.Output)
			return

		case stage.StatusCancelled:
			d.finalizeCancelled(j, tok.Reason())
			return

		case stage.StatusNeedsInput:
			d.park(j, out.Gap)
			return

		default:
			if !d.retryOrFail(j, tok, out, attempt) {
				return
			}
		}
	}
}

// invoke runs one stage invocation under the per-stage deadline. The
// job's visible attempt counter tracks the current stage and resets
// whenever a stage starts over, including after supplemental input.
func (d *Dispatcher) invoke(a stage.Adapter, name stage.Name, attempt int, j *job.Job, tok *cancel.Token, supplement string) stage.Outcome {
	d.mu.Lock()
	j.Attempt = attempt
	in := stage.Input{
		Stage:      name,
		Job:        j,
		Transcript: j.Transcript,
		Supplement: supplement,
	}
	timeout := j.StageTimeout
	d.mu.Unlock()

	d.hooks.EmitStageStarted(context.Background(), j, name)

	ctx := context.Background()
	if timeout > 0 {
		var cancelCtx context.CancelFunc
		ctx, cancelCtx = context.WithTimeout(ctx, timeout)
		defer cancelCtx()
	}
	return a.Invoke(ctx, in, tok)
}

// retryOrFail consults the retry policy for a failed invocation. Returns
// true if the stage should be re-invoked after the backoff delay; false
// means the job was finalized or cancelled.
func (d *Dispatcher) retryOrFail(j *job.Job, tok *cancel.Token, out stage.Outcome, attempt int) bool {
	dec := d.retry.Decide(out.Kind, attempt)
	if !dec.Retry {
		d.finalizeFailed(j, out.Kind, out.Detail)
		return false
	}

	nextAt := time.Now().UTC().Add(dec.After)
	d.logger.Warn("stage failed, retrying",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(out.Kind)),
		slog.String("detail", out.Detail),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", dec.After),
	)
	d.publish(j, event.Event{
		Type:          event.TypeRetryScheduled,
		Kind:          out.Kind,
		Detail:        out.Detail,
		NextAttemptAt: nextAt,
	})
	d.hooks.EmitRetryScheduled(context.Background(), j, attempt, nextAt)

	select {
	case <-time.After(dec.After):
		return true
	case <-tok.Done():
		d.finalizeCancelled(j, tok.Reason())
		return false
	}
}

// park moves a job to AwaitingInput, releases its slot (via the caller's
// deferred release), and arms the input grace timer.
func (d *Dispatcher) park(j *job.Job, gap string) {
	d.transition(j, job.StateAwaitingInput)

	// A cancel may have landed between the needs_input outcome and here.
	if tok, ok := d.tokens.Get(j.ID); ok && tok.Cancelled() {
		d.finalizeCancelled(j, tok.Reason())
		return
	}

	jobID := j.ID
	timer := time.AfterFunc(d.cfg.InputGrace, func() {
		if err := d.Cancel(context.Background(), jobID, cancel.ReasonInputTimeout); err != nil && !errors.Is(err, ErrJobNotFound) {
			d.logger.Warn("input grace cancellation failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	})

	d.mu.Lock()
	d.waiting[j.ID.String()] = &parked{gap: gap, timer: timer}
	d.mu.Unlock()

	d.logger.Info("job awaiting input",
		slog.String("job_id", j.ID.String()),
		slog.String("gap", gap),
	)
	d.publish(j, event.Event{Type: event.TypeInputRequired, Gap: gap})
	d.hooks.EmitInputRequired(context.Background(), j, gap)
}

// janitorLoop evicts terminal jobs once their retention window passes.
func (d *Dispatcher) janitorLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.evictExpired()
		}
	}
}

func (d *Dispatcher) evictExpired() {
	cutoff := time.Now().UTC().Add(-d.cfg.Retention)

	d.mu.Lock()
	defer d.mu.Unlock()
	for key, j := range d.jobs {
		if !j.State.Terminal() {
			continue
		}
		// Backstop for a park that lost a cancel race.
		if p, ok := d.waiting[key]; ok {
			p.timer.Stop()
			delete(d.waiting, key)
		}
		if j.LastTransitionAt.Before(cutoff) {
			delete(d.jobs, key)
		}
	}
}

// ───────────────────────────────────────────────────────────────────────
// Transitions and finalization
// ───────────────────────────────────────────────────────────────────────

// transition moves a job along a declared edge and publishes the change.
// Self-edges (stage retries) are recorded without an event.
func (d *Dispatcher) transition(j *job.Job, to job.State) {
	d.mu.Lock()
	from := j.State
	if from == to {
		j.LastTransitionAt = time.Now().UTC()
		d.mu.Unlock()
		return
	}
	if !job.CanTransition(from, to) {
		d.mu.Unlock()
		d.logger.Error("undeclared state transition",
			slog.String("job_id", j.ID.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return
	}
	j.State = to
	j.LastTransitionAt = time.Now().UTC()
	d.mu.Unlock()

	d.publish(j, event.Event{Type: event.TypeStateChanged, From: from, To: to})
}

// finalize moves a job to a terminal state exactly once. Returns false
// if the job was already terminal.
func (d *Dispatcher) finalize(j *job.Job, to job.State, mutate func(*job.Job)) (job.State, bool) {
	d.mu.Lock()
	if j.State.Terminal() {
		d.mu.Unlock()
		return "", false
	}
	from := j.State
	if !job.CanTransition(from, to) {
		d.mu.Unlock()
		d.logger.Error("undeclared terminal transition",
			slog.String("job_id", j.ID.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return "", false
	}
	j.State = to
	j.LastTransitionAt = time.Now().UTC()
	mutate(j)
	d.mu.Unlock()

	d.tokens.Remove(j.ID)
	return from, true
}

func (d *Dispatcher) finalizeCompleted(j *job.Job, document string) {
	from, ok := d.finalize(j, job.StateCompleted, func(j *job.Job) {
		j.Result = &job.Result{Document: document}
	})
	if !ok {
		return
	}

	d.logger.Info("job completed",
		slog.String("job_id", j.ID.String()),
		slog.String("agent", string(j.Agent)),
		slog.Int("attempts", j.Attempt),
	)
	d.publish(j, event.Event{Type: event.TypeCompleted, From: from, To: job.StateCompleted})
	d.hooks.EmitJobCompleted(context.Background(), j, time.Since(j.CreatedAt))
	d.archiveJob(j)
}

func (d *Dispatcher) finalizeFailed(j *job.Job, kind job.FailureKind, detail string) {
	from, ok := d.finalize(j, job.StateFailed, func(j *job.Job) {
		j.Result = &job.Result{Failure: kind, Detail: detail}
	})
	if !ok {
		return
	}

	d.logger.Error("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("detail", detail),
		slog.Int("attempts", j.Attempt),
	)
	d.publish(j, event.Event{Type: event.TypeFailed, From: from, To: job.StateFailed, Kind: kind, Detail: detail})
	d.hooks.EmitJobFailed(context.Background(), j, kind, detail)
	d.archiveJob(j)
}

func (d *Dispatcher) finalizeCancelled(j *job.Job, reason cancel.Reason) {
	if reason == "" {
		reason = cancel.ReasonUser
	}
	from, ok := d.finalize(j, job.StateCancelled, func(j *job.Job) {
		j.CancelReason = string(reason)
	})
	if !ok {
		return
	}

	d.logger.Info("job cancelled",
		slog.String("job_id", j.ID.String()),
		slog.String("reason", string(reason)),
	)
	d.publish(j, event.Event{Type: event.TypeCancelled, From: from, To: job.StateCancelled, Detail: string(reason)})
	d.hooks.EmitJobCancelled(context.Background(), j, string(reason))
	d.archiveJob(j)
}

// archiveJob writes the terminal outcome to the archive store.
// Best-effort: archive failures are logged, never propagated.
func (d *Dispatcher) archiveJob(j *job.Job) {
	d.mu.Lock()
	rec := &store.Record{
		ID:           id.NewRecordID(),
		JobID:        j.ID,
		Agent:        j.Agent,
		State:        j.State,
		Transcript:   j.Transcript,
		CancelReason: j.CancelReason,
		Attempts:     j.Attempt,
		CreatedAt:    j.CreatedAt,
		FinishedAt:   j.LastTransitionAt,
	}
	if j.Result != nil {
		rec.Document = j.Result.Document
		rec.Kind = j.Result.Failure
		rec.Detail = j.Result.Detail
	}
	d.mu.Unlock()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()
	if err := d.archive.SaveRecord(ctx, rec); err != nil {
		d.logger.Warn("archive write failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// publish fills event identity fields and hands it to the bus.
func (d *Dispatcher) publish(j *job.Job, evt event.Event) {
	d.mu.Lock()
	evt.ID = id.NewEventID()
	evt.JobID = j.ID
	evt.Attempt = j.Attempt
	evt.At = time.Now().UTC()
	d.mu.Unlock()
	d.bus.Publish(evt)
}

// nudge wakes the dispatch loop without blocking.
func (d *Dispatcher) nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) snapshotOf(j *job.Job) *job.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *j
	return &cp
}

// removeResume drops a pending resumption. Caller holds d.mu.
func (d *Dispatcher) removeResume(jobID id.JobID) {
	for i, r := range d.resume {
		if r.j.ID == jobID {
			d.resume = append(d.resume[:i], d.resume[i+1:]...)
			return
		}
	}
}

// removeOverflow drops an agent-capped job. Caller holds d.mu.
func (d *Dispatcher) removeOverflow(jobID id.JobID) bool {
	for i, j := range d.overflow {
		if j.ID == jobID {
			d.overflow = append(d.overflow[:i], d.overflow[i+1:]...)
			return true
		}
	}
	return false
}

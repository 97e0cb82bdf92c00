// Package sched schedules dictation jobs through a two-stage pipeline:
// audio is transcribed, then the transcript is turned into a structured
// clinical document by a per-agent generation profile.
//
// The Dispatcher owns the whole lifecycle. Jobs are admitted through a
// bounded priority queue with FIFO ordering within a level and an aging
// boost that keeps low-priority work from starving. A fixed pool of
// concurrency slots bounds how many jobs run at once; a slot is held
// across the transcribe→generate handoff and across retries, and is
// released when the job finishes or parks for supplemental input.
//
// Stage failures are classified as transient or permanent. Transient
// failures are retried in place with jittered exponential backoff up to
// a per-kind budget; permanent failures fail the job immediately.
// Cancellation is cooperative: every job carries a token that adapters
// must observe.
//
// Basic usage:
//
//	d, err := sched.New(sched.DefaultConfig(),
//		sched.WithTranscriber(&stage.TranscribeClient{URL: whisperURL}),
//		sched.WithGenerator(&stage.GenerateClient{URL: lmURL, Model: model, Agents: agent.NewRegistry()}),
//	)
//	if err != nil { ... }
//	d.Start(ctx)
//	defer d.Stop(ctx)
//
//	j, err := d.Submit(ctx, "visit-001.wav", agent.KindClinicLetter, job.PriorityHigh)
//	sub := d.Subscribe(j.ID)
//	for evt := range sub.Events() { ... }
package sched

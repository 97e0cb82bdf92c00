package sched

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scribeflow/sched/backoff"
	"github.com/scribeflow/sched/hook"
	"github.com/scribeflow/sched/queue"
	"github.com/scribeflow/sched/retry"
	"github.com/scribeflow/sched/stage"
	"github.com/scribeflow/sched/store"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTranscriber sets the transcription stage adapter. Required.
func WithTranscriber(a stage.Adapter) Option {
	return func(d *Dispatcher) { d.transcriber = a }
}

// WithGenerator sets the generation stage adapter. Required.
func WithGenerator(a stage.Adapter) Option {
	return func(d *Dispatcher) { d.generator = a }
}

// WithStore sets the archive for terminal job outcomes. Defaults to an
// unbounded in-memory store. The caller owns the store lifecycle.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) { d.archive = s }
}

// WithAgentLimits adds per-agent concurrency caps and admission rate
// limits on top of the pool-wide MaxConcurrent.
func WithAgentLimits(limits ...queue.AgentLimit) Option {
	return func(d *Dispatcher) { d.agentLimits = append(d.agentLimits, limits...) }
}

// WithBackoff sets the retry backoff strategy, overriding the
// BackoffBase/BackoffMax configuration.
func WithBackoff(b backoff.Strategy) Option {
	return func(d *Dispatcher) { d.backoff = b }
}

// WithRetryPolicy replaces the whole retry policy. Overrides
// TransientRetryLimit and WithBackoff.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(d *Dispatcher) { d.retry = p }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e hook.Extension) Option {
	return func(d *Dispatcher) { d.extensions = append(d.extensions, e) }
}

// WithMiddleware appends stage middleware after the default
// recover/tracing/metrics/logging stack.
func WithMiddleware(mws ...stage.Middleware) Option {
	return func(d *Dispatcher) { d.middleware = append(d.middleware, mws...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the stage
// tracing middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the stage
// metrics middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *Dispatcher) { d.meterProvider = mp }
}

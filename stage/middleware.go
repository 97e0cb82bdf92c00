package stage

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

// scopeName is the instrumentation scope for stage tracing and metrics.
const scopeName = "github.com/scribeflow/sched"

// Handler is the terminal function that invokes the wrapped adapter.
type Handler func(ctx context.Context) Outcome

// Middleware wraps a stage invocation with cross-cutting logic. It
// receives the invocation input and the next handler; it MUST call next
// to continue the chain unless short-circuiting.
type Middleware func(ctx context.Context, in Input, next Handler) Outcome

// Chain composes multiple middleware into one. Middleware are applied
// right-to-left: the first middleware in the list is the outermost
// wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, in Input, next Handler) Outcome {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) Outcome {
				return mw(ctx, in, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap returns an Adapter that runs the given middleware around every
// invocation of the inner adapter.
func Wrap(inner Adapter, mws ...Middleware) Adapter {
	chain := Chain(mws...)
	return Func(func(ctx context.Context, in Input, tok *cancel.Token) Outcome {
		return chain(ctx, in, func(ctx context.Context) Outcome {
			return inner.Invoke(ctx, in, tok)
		})
	})
}

// Recover returns middleware that converts adapter panics into permanent
// failures, so one buggy adapter can never take down the scheduler loop.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, in Input, next Handler) (out Outcome) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("stage adapter panicked",
					slog.String("stage", string(in.Stage)),
					slog.String("job_id", in.Job.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = Failuref(job.FailurePermanent, "panic in %s stage: %v", in.Stage, r)
			}
		}()
		return next(ctx)
	}
}

// Logging returns middleware that logs invocation start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, in Input, next Handler) Outcome {
		logger.Info("stage started",
			slog.String("stage", string(in.Stage)),
			slog.String("job_id", in.Job.ID.String()),
			slog.String("agent", string(in.Job.Agent)),
			slog.Int("attempt", in.Job.Attempt),
		)

		start := time.Now()
		out := next(ctx)
		elapsed := time.Since(start)

		switch out.Status {
		case StatusFailure:
			logger.Error("stage failed",
				slog.String("stage", string(in.Stage)),
				slog.String("job_id", in.Job.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("kind", string(out.Kind)),
				slog.String("detail", out.Detail),
			)
		case StatusNeedsInput:
			logger.Info("stage needs input",
				slog.String("stage", string(in.Stage)),
				slog.String("job_id", in.Job.ID.String()),
				slog.String("gap", out.Gap),
			)
		case StatusCancelled:
			logger.Info("stage cancelled",
				slog.String("stage", string(in.Stage)),
				slog.String("job_id", in.Job.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		default:
			logger.Info("stage completed",
				slog.String("stage", string(in.Stage)),
				slog.String("job_id", in.Job.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out
	}
}

// Tracing returns middleware that wraps stage invocations in an
// OpenTelemetry span using the global TracerProvider. With no provider
// configured this is a noop pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(scopeName))
}

// TracingWithTracer returns tracing middleware using the provided tracer,
// for injecting a specific TracerProvider in tests.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, in Input, next Handler) Outcome {
		ctx, span := tracer.Start(ctx, "sched.stage.invoke",
			trace.WithAttributes(
				attribute.String("sched.stage", string(in.Stage)),
				attribute.String("sched.job.id", in.Job.ID.String()),
				attribute.String("sched.agent", string(in.Job.Agent)),
				attribute.Int("sched.attempt", in.Job.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		out := next(ctx)
		if out.Status == StatusFailure {
			span.SetStatus(codes.Error, out.Detail)
		} else {
			span.SetStatus(codes.Ok, string(out.Status))
		}

		return out
	}
}

// Metrics returns middleware that records per-invocation metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - sched.stage.duration (Float64Histogram): invocation time in seconds
//   - sched.stage.invocations (Int64Counter): total invocations
//
// Both carry stage, agent, and status attributes.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(scopeName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once; the OTel API guarantees noop
	// fallbacks on error, so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"sched.stage.duration",
		metric.WithDescription("Duration of stage invocations in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	invocations, iErr := meter.Int64Counter(
		"sched.stage.invocations",
		metric.WithDescription("Total number of stage invocations"),
		metric.WithUnit("{invocation}"),
	)
	_ = iErr

	return func(ctx context.Context, in Input, next Handler) Outcome {
		start := time.Now()
		out := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("stage", string(in.Stage)),
			attribute.String("agent", string(in.Job.Agent)),
			attribute.String("status", string(out.Status)),
		)

		duration.Record(ctx, elapsed, attrs)
		invocations.Add(ctx, 1, attrs)

		return out
	}
}

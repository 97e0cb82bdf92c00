package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

// withToken derives a context that is cancelled when the token flips, so
// an in-flight HTTP request aborts promptly on job cancellation. The
// returned stop function must be called to release the watcher.
func withToken(ctx context.Context, tok *cancel.Token) (context.Context, func()) {
	if tok == nil {
		return ctx, func() {}
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-tok.Done():
			cancelCtx()
		case <-ctx.Done():
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancelCtx()
	}
}

// classifyTransportError maps a failed round trip to an outcome. Token
// cancellation wins over every other interpretation; context deadline and
// network errors are transient.
func classifyTransportError(err error, tok *cancel.Token) Outcome {
	if tok != nil && tok.Cancelled() {
		return Cancelled()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failuref(job.FailureTransient, "request deadline exceeded: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled()
	}
	return Failuref(job.FailureTransient, "request failed: %v", err)
}

// classifyStatus maps a non-2xx HTTP status to a failure outcome.
// 408/429/5xx are transient (busy or flaky server); other 4xx mean the
// service rejected the input and a retry cannot help.
func classifyStatus(status int, body []byte) Outcome {
	detail := fmt.Sprintf("unexpected status %d: %s", status, truncate(body, 256))
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return Failure(job.FailureTransient, detail)
	}
	return Failure(job.FailurePermanent, detail)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func readBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, 1<<20))
	return b
}

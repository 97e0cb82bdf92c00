package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

// TranscribeClient invokes a whisper-compatible transcription endpoint.
// The job's payload reference is resolved through Open; by default it is
// treated as a local file path, which matches the watcher-fed recording
// directory layout the daemon ingests from.
type TranscribeClient struct {
	// URL is the transcription endpoint, e.g.
	// "http://localhost:8001/v1/audio/transcriptions".
	URL string

	// HTTPClient is the client used for requests. Defaults to
	// http.DefaultClient. Per-invocation deadlines come from the
	// context; do not set a competing client timeout.
	HTTPClient *http.Client

	// Open resolves a payload reference to an audio byte stream.
	// Defaults to os.Open.
	Open func(ref string) (io.ReadCloser, error)
}

var _ Adapter = (*TranscribeClient)(nil)

// transcriptionResponse is the whisper server's JSON response shape.
type transcriptionResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Model    string  `json:"model"`
}

// Invoke uploads the audio as multipart form data and returns the
// transcript text. An empty transcript is a permanent failure: silence
// cannot be fixed by retrying.
func (c *TranscribeClient) Invoke(ctx context.Context, in Input, tok *cancel.Token) Outcome {
	if tok != nil && tok.Cancelled() {
		return Cancelled()
	}

	open := c.Open
	if open == nil {
		open = func(ref string) (io.ReadCloser, error) { return os.Open(ref) }
	}

	audio, err := open(in.Job.PayloadRef)
	if err != nil {
		return Failuref(job.FailurePermanent, "open audio %s: %v", in.Job.PayloadRef, err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(in.Job.PayloadRef))
	if err != nil {
		return Failuref(job.FailurePermanent, "build multipart request: %v", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Failuref(job.FailurePermanent, "read audio %s: %v", in.Job.PayloadRef, err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return Failuref(job.FailurePermanent, "build multipart request: %v", err)
	}
	if err := mw.Close(); err != nil {
		return Failuref(job.FailurePermanent, "build multipart request: %v", err)
	}

	ctx, stop := withToken(ctx, tok)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, &buf)
	if err != nil {
		return Failuref(job.FailurePermanent, "build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	httpc := c.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return classifyTransportError(err, tok)
	}
	defer resp.Body.Close()

	body := readBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, body)
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Failuref(job.FailurePermanent, "parse transcription response: %v", err)
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return Failure(job.FailurePermanent, "transcription returned empty text")
	}

	return Success(text)
}

package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

// GenerateClient invokes an OpenAI-compatible chat completions endpoint
// with the per-agent system prompt from the profile registry.
//
// The generation service may report a recoverable gap instead of a
// document by returning a JSON object `{"needs_input": "<description>"}`
// as the message content. The client surfaces that as a NeedsInput
// outcome; everything else is treated as the document text.
type GenerateClient struct {
	// URL is the chat completions endpoint, e.g.
	// "http://localhost:1234/v1/chat/completions".
	URL string

	// Model is the model name sent with every request.
	Model string

	// Agents resolves agent kinds to profiles. Required.
	Agents *agent.Registry

	// HTTPClient is the client used for requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

var _ Adapter = (*GenerateClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// gapSignal is the in-band control shape a generation agent returns when
// it cannot complete without supplemental input.
type gapSignal struct {
	NeedsInput string `json:"needs_input"`
}

// Invoke sends the transcript (plus any supplemental input from an
// earlier NeedsInput round trip) through the agent's profile and returns
// the generated document.
func (c *GenerateClient) Invoke(ctx context.Context, in Input, tok *cancel.Token) Outcome {
	if tok != nil && tok.Cancelled() {
		return Cancelled()
	}

	profile := c.Agents.Get(in.Job.Agent)

	user := in.Transcript
	if in.Supplement != "" {
		user += "\n\nSupplemental information from the clinician:\n" + in.Supplement
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: profile.System},
			{Role: "user", Content: user},
		},
		Temperature: profile.Temperature,
	})
	if err != nil {
		return Failuref(job.FailurePermanent, "marshal generation request: %v", err)
	}

	ctx, stop := withToken(ctx, tok)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return Failuref(job.FailurePermanent, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Failuref(job.FailurePermanent, "parse generation response: %v", err)
	}
	if len(cr.Choices) == 0 {
		return Failure(job.FailurePermanent, "generation response had no choices")
	}

	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	if content == "" {
		return Failure(job.FailurePermanent, "generation returned empty content")
	}

	// In-band gap signal from the agent.
	if strings.HasPrefix(content, "{") {
		var gap gapSignal
		if err := json.Unmarshal([]byte(content), &gap); err == nil && gap.NeedsInput != "" {
			return NeedsInput(gap.NeedsInput)
		}
	}

	return Success(content)
}

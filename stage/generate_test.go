package stage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/job"
	"github.com/scribeflow/sched/stage"
)

func generateInput(transcript string) stage.Input {
	return stage.Input{
		Stage:      stage.Generate,
		Job:        job.New("recordings/visit-001.wav", agent.KindClinicLetter, job.PriorityNormal),
		Transcript: transcript,
	}
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestGenerateClient_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		io.WriteString(w, chatReply("Dear Dr Smith,\n\nThank you for referring this patient."))
	}))
	defer srv.Close()

	c := &stage.GenerateClient{
		URL:    srv.URL,
		Model:  "qwen2.5-32b",
		Agents: agent.NewRegistry(),
	}
	out := c.Invoke(context.Background(), generateInput("patient presents with chest pain"), nil)

	if out.Status != stage.StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", out.Status, out.Detail)
	}
	if !strings.HasPrefix(out.Output, "Dear Dr Smith") {
		t.Errorf("Output = %q", out.Output)
	}
	if gotBody["model"] != "qwen2.5-32b" {
		t.Errorf("model = %v", gotBody["model"])
	}

	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", gotBody["messages"])
	}
	sys := msgs[0].(map[string]any)
	if sys["role"] != "system" || sys["content"] == "" {
		t.Errorf("system message = %v", sys)
	}
	user := msgs[1].(map[string]any)
	if user["content"] != "patient presents with chest pain" {
		t.Errorf("user content = %v", user["content"])
	}
}

func TestGenerateClient_SupplementAppendedToPrompt(t *testing.T) {
	var userContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				userContent = m.Content
			}
		}
		io.WriteString(w, chatReply("done"))
	}))
	defer srv.Close()

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: agent.NewRegistry()}
	in := generateInput("transcript text")
	in.Supplement = "The patient's MRN is 4471923."
	c.Invoke(context.Background(), in, nil)

	if !strings.Contains(userContent, "transcript text") {
		t.Errorf("user content missing transcript: %q", userContent)
	}
	if !strings.Contains(userContent, "Supplemental information from the clinician:") {
		t.Errorf("user content missing supplement header: %q", userContent)
	}
	if !strings.Contains(userContent, "MRN is 4471923") {
		t.Errorf("user content missing supplement body: %q", userContent)
	}
}

func TestGenerateClient_NeedsInputSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, chatReply(`{"needs_input": "referring doctor's name is not mentioned"}`))
	}))
	defer srv.Close()

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: agent.NewRegistry()}
	out := c.Invoke(context.Background(), generateInput("transcript"), nil)

	if out.Status != stage.StatusNeedsInput {
		t.Fatalf("Status = %q, want needs_input", out.Status)
	}
	if out.Gap != "referring doctor's name is not mentioned" {
		t.Errorf("Gap = %q", out.Gap)
	}
}

func TestGenerateClient_JSONContentWithoutSignalIsDocument(t *testing.T) {
	// Structured-output agents legitimately return JSON documents; only
	// the needs_input key is a control signal.
	doc := `{"summary": "stable angina", "plan": "stress test"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, chatReply(doc))
	}))
	defer srv.Close()

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: agent.NewRegistry()}
	out := c.Invoke(context.Background(), generateInput("transcript"), nil)

	if out.Status != stage.StatusSuccess {
		t.Fatalf("Status = %q, want success", out.Status)
	}
	if out.Output != doc {
		t.Errorf("Output = %q", out.Output)
	}
}

func TestGenerateClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: agent.NewRegistry()}
	out := c.Invoke(context.Background(), generateInput("transcript"), nil)

	if out.Status != stage.StatusFailure || out.Kind != job.FailureTransient {
		t.Errorf("got %+v, want transient failure", out)
	}
}

func TestGenerateClient_EmptyChoicesIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: agent.NewRegistry()}
	out := c.Invoke(context.Background(), generateInput("transcript"), nil)

	if out.Status != stage.StatusFailure || out.Kind != job.FailurePermanent {
		t.Errorf("got %+v, want permanent failure", out)
	}
}

func TestGenerateClient_ConnectionRefusedIsTransient(t *testing.T) {
	// Reserve a port, then close the listener so the address refuses.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := &stage.GenerateClient{URL: url, Model: "m", Agents: agent.NewRegistry()}
	out := c.Invoke(context.Background(), generateInput("transcript"), nil)

	if out.Status != stage.StatusFailure || out.Kind != job.FailureTransient {
		t.Errorf("got %+v, want transient failure", out)
	}
}

func TestGenerateClient_UsesAgentTemperature(t *testing.T) {
	var gotTemp float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Temperature float64 `json:"temperature"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		gotTemp = req.Temperature
		io.WriteString(w, chatReply("done"))
	}))
	defer srv.Close()

	reg := agent.NewRegistry()
	want := reg.Get(agent.KindClinicLetter).Temperature

	c := &stage.GenerateClient{URL: srv.URL, Model: "m", Agents: reg}
	c.Invoke(context.Background(), generateInput("transcript"), nil)

	if gotTemp != want {
		t.Errorf("temperature = %v, want profile value %v", gotTemp, want)
	}
}

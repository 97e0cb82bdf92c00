package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sched "github.com/scribeflow/sched"
	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/httpapi"
	"github.com/scribeflow/sched/stage"
	"github.com/scribeflow/sched/store/memory"
)

func testServer(t *testing.T, transcriber, generator stage.Adapter) (*httptest.Server, *sched.Dispatcher, *memory.Store) {
	t.Helper()

	cfg := sched.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond

	archive := memory.New()
	d, err := sched.New(cfg,
		sched.WithTranscriber(transcriber),
		sched.WithGenerator(generator),
		sched.WithStore(archive),
	)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelCtx()
		d.Stop(ctx)
	})

	api := httpapi.New(d, httpapi.WithArchive(archive))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, d, archive
}

func ok(output string) stage.Adapter {
	return stage.Func(func(_ context.Context, _ stage.Input, _ *cancel.Token) stage.Outcome {
		return stage.Success(output)
	})
}

func submit(t *testing.T, srv *httptest.Server, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/jobs", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func waitCompleted(t *testing.T, srv *httptest.Server, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/v1/jobs/" + jobID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var out struct {
			Job map[string]any `json:"job"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if state, _ := out.Job["state"].(string); state == "completed" {
			return out.Job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never completed")
	return nil
}

func TestAPI_SubmitAndGet(t *testing.T) {
	srv, _, _ := testServer(t, ok("transcript"), ok("document"))

	created := submit(t, srv, `{"payload_ref":"visit.wav","agent":"clinic_letter","priority":"high"}`)
	jobID, _ := created["id"].(string)
	if jobID == "" {
		t.Fatalf("no id in response: %v", created)
	}
	if created["state"] != "queued" {
		t.Errorf("state = %v, want queued", created["state"])
	}

	done := waitCompleted(t, srv, jobID)
	result, _ := done["result"].(map[string]any)
	if result == nil || result["document"] != "document" {
		t.Errorf("result = %v", result)
	}
}

func TestAPI_SubmitValidation(t *testing.T) {
	srv, _, _ := testServer(t, ok("t"), ok("d"))

	cases := []struct {
		body string
		want int
	}{
		{`not json`, http.StatusBadRequest},
		{`{"agent":"clinic_letter"}`, http.StatusBadRequest},
		{`{"payload_ref":"x.wav","agent":"nonsense"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/v1/jobs", "application/json", bytes.NewBufferString(tc.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("body %q: status = %d, want %d", tc.body, resp.StatusCode, tc.want)
		}
	}
}

func TestAPI_GetUnknownJob(t *testing.T) {
	srv, _, _ := testServer(t, ok("t"), ok("d"))

	resp, err := http.Get(srv.URL + "/v1/jobs/job_00000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/jobs/garbage")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed id", resp.StatusCode)
	}
}

func TestAPI_InputFlow(t *testing.T) {
	gen := stage.Func(func(_ context.Context, in stage.Input, _ *cancel.Token) stage.Outcome {
		if in.Supplement == "" {
			return stage.NeedsInput("missing mrn")
		}
		return stage.Success("doc with " + in.Supplement)
	})
	srv, _, _ := testServer(t, ok("transcript"), gen)

	created := submit(t, srv, `{"payload_ref":"visit.wav","agent":"note"}`)
	jobID := created["id"].(string)

	// Wait until parked, then check the gap is surfaced.
	deadline := time.Now().Add(3 * time.Second)
	var gap string
	for time.Now().Before(deadline) {
		resp, _ := http.Get(srv.URL + "/v1/jobs/" + jobID)
		var out struct {
			Job map[string]any `json:"job"`
			Gap string         `json:"gap"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if out.Job["state"] == "awaiting_input" {
			gap = out.Gap
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if gap != "missing mrn" {
		t.Fatalf("gap = %q", gap)
	}

	resp, err := http.Post(srv.URL+"/v1/jobs/"+jobID+"/input", "application/json",
		bytes.NewBufferString(`{"supplement":"MRN 4471923"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("input status = %d, want 202", resp.StatusCode)
	}

	done := waitCompleted(t, srv, jobID)
	result := done["result"].(map[string]any)
	if result["document"] != "doc with MRN 4471923" {
		t.Errorf("document = %v", result["document"])
	}

	// Supplying input again conflicts.
	resp, err = http.Post(srv.URL+"/v1/jobs/"+jobID+"/input", "application/json",
		bytes.NewBufferString(`{"supplement":"again"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second input status = %d, want 409", resp.StatusCode)
	}
}

func TestAPI_CancelQueuedJob(t *testing.T) {
	release := make(chan struct{})
	blocker := stage.Func(func(_ context.Context, _ stage.Input, tok *cancel.Token) stage.Outcome {
		select {
		case <-release:
		case <-tok.Done():
			return stage.Cancelled()
		}
		return stage.Success("t")
	})
	srv, d, _ := testServer(t, blocker, ok("d"))
	defer close(release)
	_ = d

	created := submit(t, srv, `{"payload_ref":"visit.wav","agent":"note"}`)
	jobID := created["id"].(string)

	resp, err := http.Post(srv.URL+"/v1/jobs/"+jobID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, _ := http.Get(srv.URL + "/v1/jobs/" + jobID)
		var out struct {
			Job map[string]any `json:"job"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if out.Job["state"] == "cancelled" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never cancelled")
}

func TestAPI_RecordsExposed(t *testing.T) {
	srv, _, _ := testServer(t, ok("transcript"), ok("document"))

	created := submit(t, srv, `{"payload_ref":"visit.wav","agent":"echo_report"}`)
	jobID := created["id"].(string)
	waitCompleted(t, srv, jobID)

	resp, err := http.Get(srv.URL + "/v1/records/" + jobID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record status = %d, want 200", resp.StatusCode)
	}
	var rec map[string]any
	json.NewDecoder(resp.Body).Decode(&rec)
	if rec["document"] != "document" || rec["state"] != "completed" {
		t.Errorf("record = %v", rec)
	}

	resp, err = http.Get(srv.URL + "/v1/records/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []map[string]any
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("records = %d, want 1", len(list))
	}
}

func TestAPI_Health(t *testing.T) {
	srv, _, _ := testServer(t, ok("t"), ok("d"))

	resp, err := http.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["status"] != "ok" {
		t.Errorf("health = %v", out)
	}
}

func TestAPI_EventsStream(t *testing.T) {
	srv, _, _ := testServer(t, ok("transcript"), ok("document"))

	created := submit(t, srv, `{"payload_ref":"visit.wav","agent":"note"}`)
	jobID := created["id"].(string)

	ctx, cancelCtx := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelCtx()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/jobs/"+jobID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The stream closes after the terminal event; reading to EOF must
	// finish within the deadline.
	buf := make([]byte, 4096)
	var data []byte
	for {
		n, readErr := resp.Body.Read(buf)
		data = append(data, buf[:n]...)
		if readErr != nil {
			break
		}
	}
	if !bytes.Contains(data, []byte("event: completed")) {
		t.Errorf("stream missing terminal event:\n%s", data)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

func init() {
	for _, c := range []*cobra.Command{submitCmd, statusCmd, inputCmd, cancelCmd, watchCmd} {
		c.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "daemon HTTP API address")
	}
}

// jobView mirrors the API's job representation for display.
type jobView struct {
	ID           string      `json:"id"`
	Agent        string      `json:"agent"`
	PayloadRef   string      `json:"payload_ref"`
	Priority     string      `json:"priority"`
	State        string      `json:"state"`
	Attempt      int         `json:"attempt"`
	CreatedAt    time.Time   `json:"created_at"`
	Result       *resultView `json:"result"`
	CancelReason string      `json:"cancel_reason"`
}

type resultView struct {
	Document string `json:"document"`
	Failure  string `json:"failure"`
	Detail   string `json:"detail"`
}

func printJob(j jobView, gap string) {
	fmt.Printf("id:       %s\n", j.ID)
	fmt.Printf("agent:    %s\n", j.Agent)
	fmt.Printf("payload:  %s\n", j.PayloadRef)
	fmt.Printf("priority: %s\n", j.Priority)
	fmt.Printf("state:    %s\n", j.State)
	fmt.Printf("attempt:  %d\n", j.Attempt)
	if gap != "" {
		fmt.Printf("gap:      %s\n", gap)
	}
	if j.CancelReason != "" {
		fmt.Printf("reason:   %s\n", j.CancelReason)
	}
	if j.Result != nil {
		if j.Result.Document != "" {
			fmt.Printf("document:\n%s\n", j.Result.Document)
		}
		if j.Result.Failure != "" {
			fmt.Printf("failure:  %s: %s\n", j.Result.Failure, j.Result.Detail)
		}
	}
}

// call performs one API request and decodes the JSON response into out
// (when out is non-nil). Non-2xx responses become errors carrying the
// API's error message.
func call(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Package engine talks to the external RLM runner service. The runner owns
// the reasoning loop itself; this package only submits a run request and
// consumes the completed trajectory.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client communicates with an RLM runner over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given runner base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Runs can take minutes; no client-side timeout, callers bound
		// the request with ctx.
		httpClient: &http.Client{Timeout: 0},
	}
}

// IsRunning returns true if the runner responds to GET /health with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Run submits a run request and blocks until the runner returns the
// completed trajectory.
func (c *Client) Run(ctx context.Context, r Request) (RunResult, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return RunResult{}, fmt.Errorf("marshalling run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return RunResult{}, fmt.Errorf("creating run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RunResult{}, fmt.Errorf("running %s: %w", r.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RunResult{}, fmt.Errorf("run %s: unexpected status %d", r.Model, resp.StatusCode)
	}

	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RunResult{}, fmt.Errorf("decoding run result: %w", err)
	}
	return result, nil
}

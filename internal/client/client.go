// Package client provides an HTTP client for the veritest server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jfellner/veritest-go/internal/models"
)

// Client talks to the veritest server's REST and websocket endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, uses VERITEST_SERVER_URL env
// var or defaults to localhost:8585.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("VERITEST_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 10 * time.Minute // generation calls are slow
	if t := os.Getenv("VERITEST_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExportResult is the server's response to a submit-export request.
type ExportResult struct {
	JobID         string `json:"job_id"`
	BatchCount    int    `json:"batch_count"`
	TestCaseCount int    `json:"test_case_count"`
}

// SubmitExport sends the approved test cases for asynchronous export.
func (c *Client) SubmitExport(ctx context.Context, cases []models.TestCase) (*ExportResult, error) {
	var result ExportResult
	if err := c.post(ctx, "/api/export", map[string]any{"test_cases": cases}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateResult mirrors the server's generation response.
type GenerateResult struct {
	TestCases []models.TestCase `json:"test_cases"`
	Summary   struct {
		TotalRequirements int `json:"total_requirements"`
		TotalTestCases    int `json:"total_test_cases"`
	} `json:"summary"`
}

// Generate runs a requirements document through the generation pipeline.
func (c *Client) Generate(ctx context.Context, documentText string) (*GenerateResult, error) {
	var result GenerateResult
	if err := c.post(ctx, "/api/generate", map[string]any{"document_text": documentText}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// JobStatus reports how many audit records a job has accumulated.
type JobStatus struct {
	JobID        string `json:"job_id"`
	AuditRecords int    `json:"audit_records"`
}

// GetJobStatus fetches the audit record count for a job. Comparing it against
// the submitted test case count tells whether all batches have reported.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request job status: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	var status JobStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &status, nil
}

// DownloadEvidence streams the evidence bundle for a job to w. A job without
// an audit trail is reported as an error, not an empty archive.
func (c *Client) DownloadEvidence(ctx context.Context, jobID string, cases []models.TestCase, w io.Writer) error {
	body, err := json.Marshal(map[string]any{"test_cases": cases})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/evidence/"+url.PathEscape(jobID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request evidence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s - %s", resp.Status, string(msg))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download evidence: %w", err)
	}
	return nil
}

// WatchProgress connects to the progress websocket and invokes fn for every
// event until the context is cancelled or the connection drops. Events
// published before the connection are not replayed.
func (c *Client) WatchProgress(ctx context.Context, fn func(models.ProgressEvent)) error {
	wsURL, err := toWebsocketURL(c.baseURL + "/ws/progress")
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect progress stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var event models.ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("progress stream closed: %w", err)
		}
		fn(event)
	}
}

func toWebsocketURL(httpURL string) (string, error) {
	u, err := url.Parse(httpURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

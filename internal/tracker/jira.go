// Package tracker submits test cases to Jira's bulk issue creation API.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jfellner/veritest-go/internal/models"
)

// ErrResponseMismatch indicates the tracker returned a different number of
// issues than were submitted. The positional mapping between batch and
// response is a hard precondition; on mismatch no record may be correlated.
var ErrResponseMismatch = errors.New("tracker response count does not match batch size")

// Credentials is the basic-auth pair for the tracker API.
type Credentials struct {
	User  string
	Token string
}

// BulkResult carries the outcome of one bulk create call, including the raw
// wire traffic for the audit trail. RawRequest and RawResponse are populated
// whenever the request body was built, success or not.
type BulkResult struct {
	Keys        []string
	StatusCode  int
	RawRequest  string
	RawResponse string
}

// Client calls the Jira REST bulk-create endpoint.
type Client struct {
	baseURL    string
	projectKey string
	issueType  string
	fields     FieldMap
	httpClient *http.Client
}

// NewClient creates a Jira tracker client.
func NewClient(baseURL, projectKey, issueType string, fields FieldMap) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		projectKey: projectKey,
		issueType:  issueType,
		fields:     fields,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type bulkRequest struct {
	IssueUpdates []issueUpdate `json:"issueUpdates"`
}

type issueUpdate struct {
	Fields map[string]any `json:"fields"`
}

type bulkResponse struct {
	Issues []struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	} `json:"issues"`
	Errors []json.RawMessage `json:"errors"`
}

// BuildBulkRequest serializes a batch into the Jira bulk-create payload,
// preserving input order. Exposed so the exporter can audit the exact bytes
// it intended to send even when the call itself never happens.
func (c *Client) BuildBulkRequest(cases []models.TestCase) ([]byte, error) {
	req := bulkRequest{IssueUpdates: make([]issueUpdate, 0, len(cases))}
	for _, tc := range cases {
		req.IssueUpdates = append(req.IssueUpdates, issueUpdate{Fields: c.issueFields(tc)})
	}
	return json.Marshal(req)
}

func (c *Client) issueFields(tc models.TestCase) map[string]any {
	steps := make([]string, 0, len(tc.Steps))
	for _, s := range tc.Steps {
		steps = append(steps, fmt.Sprintf("%d. %s | %s", s.Step, s.Action, s.ExpectedResult))
	}

	labels := []string{tc.TestType, tc.RiskCategory, "Healthcare"}
	if tc.AutomationFeasible {
		labels = append(labels, "Automated")
	} else {
		labels = append(labels, "Manual")
	}

	return map[string]any{
		"project":                     map[string]string{"key": c.projectKey},
		"issuetype":                   map[string]string{"name": c.issueType},
		"summary":                     tc.Title,
		"description":                 tc.Description,
		"priority":                    map[string]string{"name": tc.Priority},
		"labels":                      labels,
		c.fields.RequirementLink:     tc.RequirementID,
		c.fields.TestCaseID:          tc.TestCaseID,
		c.fields.TestSteps:           strings.Join(steps, "\n"),
		c.fields.ExpectedResults:     tc.ExpectedResults,
		c.fields.ComplianceStandards: tc.ComplianceStandards,
		c.fields.RiskCategory:        tc.RiskCategory,
		c.fields.RegulatoryCitations: tc.RegulatoryCitations,
	}
}

// BulkCreate submits the batch and maps the ordered response issues back onto
// the ordered input by position. The returned BulkResult is non-nil whenever
// a request body was built, so failures still carry raw traffic for the
// audit log.
func (c *Client) BulkCreate(ctx context.Context, creds Credentials, cases []models.TestCase) (*BulkResult, error) {
	body, err := c.BuildBulkRequest(cases)
	if err != nil {
		return nil, fmt.Errorf("build bulk request: %w", err)
	}

	result := &BulkResult{RawRequest: string(body)}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/2/issue/bulk", bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(creds.User, creds.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.RawResponse = err.Error()
		return result, fmt.Errorf("call tracker: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		result.StatusCode = resp.StatusCode
		result.RawResponse = fmt.Sprintf("read body: %v", err)
		return result, fmt.Errorf("read tracker response: %w", err)
	}

	result.StatusCode = resp.StatusCode
	result.RawResponse = string(respBody)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("tracker returned %s", resp.Status)
	}

	var parsed bulkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return result, fmt.Errorf("parse tracker response: %w", err)
	}

	if len(parsed.Issues) != len(cases) {
		return result, fmt.Errorf("%w: sent %d, got %d", ErrResponseMismatch, len(cases), len(parsed.Issues))
	}

	result.Keys = make([]string, len(parsed.Issues))
	for i, issue := range parsed.Issues {
		result.Keys[i] = issue.Key
	}
	return result, nil
}

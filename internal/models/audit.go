package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Export outcome statuses recorded in the audit log.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// AuditRecord captures one export attempt for one test case. Append-only:
// records are never updated or deleted, and a retried batch produces a second
// set of records distinguishable by timestamp.
type AuditRecord struct {
	ID          *surrealmodels.RecordID `json:"id,omitempty"`
	JobID       string                  `json:"job_id"`
	TestID      string                  `json:"test_id"`
	ExternalKey *string                 `json:"external_key,omitempty"`
	Status      string                  `json:"status"`
	RawRequest  string                  `json:"raw_request"`
	RawResponse string                  `json:"raw_response"`
	Timestamp   time.Time               `json:"timestamp"`
}

// TraceabilityRow is one derived row of the evidence bundle's matrix.
type TraceabilityRow struct {
	TestID      string
	Status      string
	ExternalKey string // "N/A" when no issue was created
	Timestamp   string // RFC 3339, "N/A" when unset
}

// TraceabilityRowFrom derives a matrix row from an audit record.
func TraceabilityRowFrom(rec AuditRecord) TraceabilityRow {
	row := TraceabilityRow{
		TestID:      rec.TestID,
		Status:      rec.Status,
		ExternalKey: "N/A",
		Timestamp:   "N/A",
	}
	if rec.ExternalKey != nil && *rec.ExternalKey != "" {
		row.ExternalKey = *rec.ExternalKey
	}
	if !rec.Timestamp.IsZero() {
		row.Timestamp = rec.Timestamp.UTC().Format(time.RFC3339)
	}
	return row
}

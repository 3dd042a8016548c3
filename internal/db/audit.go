package db

import (
	"context"
	"fmt"

	"github.com/jfellner/veritest-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// InsertAuditRecord appends one export attempt record. Records are never
// updated afterwards; a retried batch inserts fresh rows.
func (c *Client) InsertAuditRecord(ctx context.Context, rec models.AuditRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE audit_record SET
			job_id = $job_id,
			test_id = $test_id,
			external_key = $external_key,
			status = $status,
			raw_request = $raw_request,
			raw_response = $raw_response,
			timestamp = <datetime>$timestamp
	`, map[string]any{
		"job_id":       rec.JobID,
		"test_id":      rec.TestID,
		"external_key": rec.ExternalKey,
		"status":       rec.Status,
		"raw_request":  rec.RawRequest,
		"raw_response": rec.RawResponse,
		"timestamp":    rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// QueryAuditRecordsByJob returns all records for a job ordered by timestamp
// ascending. A job with zero records yields ErrNoAuditTrail, so callers can
// tell "no evidence" apart from a query failure.
func (c *Client) QueryAuditRecordsByJob(ctx context.Context, jobID string) ([]models.AuditRecord, error) {
	results, err := surrealdb.Query[[]models.AuditRecord](ctx, c.db, `
		SELECT * FROM audit_record WHERE job_id = $job_id ORDER BY timestamp ASC
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAuditTrail, jobID)
	}
	return (*results)[0].Result, nil
}

// CountAuditRecords returns the number of records for a job. Zero is a valid
// result here (job status reporting, not evidence assembly).
func (c *Client) CountAuditRecords(ctx context.Context, jobID string) (int, error) {
	results, err := surrealdb.Query[[]struct {
		C int `json:"c"`
	}](ctx, c.db, `
		SELECT count() AS c FROM audit_record WHERE job_id = $job_id GROUP ALL
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// Package evidence assembles streamed audit evidence bundles.
package evidence

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jfellner/veritest-go/internal/metrics"
	"github.com/jfellner/veritest-go/internal/models"
)

// The three fixed entries of every evidence bundle.
const (
	EntryTestCases    = "test_cases.json"
	EntryAuditRecords = "audit_records.json"
	EntryTraceability = "traceability_matrix.csv"
)

// AuditSource reads the audit trail for a job. Implemented by db.Client.
// Zero records must surface as db.ErrNoAuditTrail, never an empty slice.
type AuditSource interface {
	QueryAuditRecordsByJob(ctx context.Context, jobID string) ([]models.AuditRecord, error)
}

// Assembler builds evidence bundles from the audit log and the client's copy
// of the original test cases.
type Assembler struct {
	audit   AuditSource
	metrics *metrics.Collector
}

// NewAssembler creates an assembler. The metrics collector may be nil.
func NewAssembler(audit AuditSource, mc *metrics.Collector) *Assembler {
	return &Assembler{audit: audit, metrics: mc}
}

// Write streams a zip archive with the three bundle entries to w. The audit
// log is queried up front, so a job without an audit trail fails before any
// byte is written. Once streaming has begun, errors can only be returned to
// the caller for logging: the archive on the wire is already truncated and
// the reader detects that as a corrupt zip.
func (a *Assembler) Write(ctx context.Context, w io.Writer, jobID string, cases []models.TestCase) error {
	start := time.Now()
	records, err := a.audit.QueryAuditRecordsByJob(ctx, jobID)
	if a.metrics != nil {
		a.metrics.RecordTiming(metrics.OpAuditQuery, time.Since(start))
	}
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	if err := writeJSONEntry(zw, EntryTestCases, cases); err != nil {
		return err
	}
	if err := writeJSONEntry(zw, EntryAuditRecords, records); err != nil {
		return err
	}
	if err := writeTraceabilityEntry(zw, records); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordTiming(metrics.OpEvidenceBuild, time.Since(start))
	}
	return nil
}

// writeJSONEntry streams one archive entry as indented JSON. The zip writer
// flushes through to the underlying writer, so entries reach the caller as
// they are produced rather than being buffered whole.
func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	enc := json.NewEncoder(entry)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// writeTraceabilityEntry derives the matrix: one CSV row per audit record.
func writeTraceabilityEntry(zw *zip.Writer, records []models.AuditRecord) error {
	entry, err := zw.Create(EntryTraceability)
	if err != nil {
		return fmt.Errorf("create %s: %w", EntryTraceability, err)
	}

	cw := csv.NewWriter(entry)
	if err := cw.Write([]string{"test_id", "export_status", "jira_key", "timestamp"}); err != nil {
		return fmt.Errorf("write matrix header: %w", err)
	}

	for _, rec := range records {
		row := models.TraceabilityRowFrom(rec)
		if err := cw.Write([]string{row.TestID, row.Status, row.ExternalKey, row.Timestamp}); err != nil {
			return fmt.Errorf("write matrix row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush matrix: %w", err)
	}
	return nil
}

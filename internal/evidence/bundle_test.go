package evidence

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jfellner/veritest-go/internal/db"
	"github.com/jfellner/veritest-go/internal/models"
)

type fakeAuditSource struct {
	records []models.AuditRecord
	err     error
}

func (f *fakeAuditSource) QueryAuditRecordsByJob(ctx context.Context, jobID string) ([]models.AuditRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func strPtr(s string) *string { return &s }

func sampleRecords() []models.AuditRecord {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return []models.AuditRecord{
		{JobID: "job1", TestID: "TC-REQ-001-01", ExternalKey: strPtr("HQA-1"), Status: models.StatusSuccess,
			RawRequest: `{"r":1}`, RawResponse: `{"ok":1}`, Timestamp: ts},
		{JobID: "job1", TestID: "TC-REQ-001-02", ExternalKey: strPtr("HQA-2"), Status: models.StatusSuccess,
			RawRequest: `{"r":2}`, RawResponse: `{"ok":2}`, Timestamp: ts.Add(time.Second)},
		{JobID: "job1", TestID: "TC-REQ-002-01", Status: models.StatusFailure,
			RawRequest: `{"r":3}`, RawResponse: `{"errorMessages":["boom"]}`, Timestamp: ts.Add(2 * time.Second)},
	}
}

func readBundle(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		entries[f.Name] = content
	}
	return entries
}

func TestBundleHasThreeNamedEntries(t *testing.T) {
	assembler := NewAssembler(&fakeAuditSource{records: sampleRecords()}, nil)

	var buf bytes.Buffer
	cases := []models.TestCase{{TestCaseID: "TC-REQ-001-01", Title: "t", Description: "d"}}
	if err := assembler.Write(context.Background(), &buf, "job1", cases); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := readBundle(t, buf.Bytes())
	if len(entries) != 3 {
		t.Fatalf("expected exactly 3 entries, got %d", len(entries))
	}
	for _, name := range []string{EntryTestCases, EntryAuditRecords, EntryTraceability} {
		if _, ok := entries[name]; !ok {
			t.Errorf("missing entry %s", name)
		}
	}
}

func TestBundleContentsVerbatim(t *testing.T) {
	records := sampleRecords()
	assembler := NewAssembler(&fakeAuditSource{records: records}, nil)

	cases := []models.TestCase{
		{TestCaseID: "TC-REQ-001-01", Title: "Alert latency", Description: "Vital signs alert under 1s"},
	}

	var buf bytes.Buffer
	if err := assembler.Write(context.Background(), &buf, "job1", cases); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	entries := readBundle(t, buf.Bytes())

	var gotCases []models.TestCase
	if err := json.Unmarshal(entries[EntryTestCases], &gotCases); err != nil {
		t.Fatalf("parse test cases entry: %v", err)
	}
	if len(gotCases) != 1 || gotCases[0].Title != "Alert latency" {
		t.Errorf("test cases not preserved verbatim: %+v", gotCases)
	}

	var gotRecords []models.AuditRecord
	if err := json.Unmarshal(entries[EntryAuditRecords], &gotRecords); err != nil {
		t.Fatalf("parse audit records entry: %v", err)
	}
	if len(gotRecords) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(gotRecords))
	}
	if gotRecords[2].RawResponse != `{"errorMessages":["boom"]}` {
		t.Errorf("raw failure response not preserved: %q", gotRecords[2].RawResponse)
	}
}

func TestTraceabilityMatrixRows(t *testing.T) {
	assembler := NewAssembler(&fakeAuditSource{records: sampleRecords()}, nil)

	var buf bytes.Buffer
	if err := assembler.Write(context.Background(), &buf, "job1", nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	entries := readBundle(t, buf.Bytes())

	rows, err := csv.NewReader(bytes.NewReader(entries[EntryTraceability])).ReadAll()
	if err != nil {
		t.Fatalf("parse matrix: %v", err)
	}

	// Header plus one row per audit record.
	if len(rows) != 4 {
		t.Fatalf("expected 4 CSV rows, got %d", len(rows))
	}
	if rows[0][2] != "jira_key" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][2] != "HQA-1" || rows[1][1] != models.StatusSuccess {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[3][2] != "N/A" {
		t.Errorf("failure row should carry N/A key, got %q", rows[3][2])
	}
	if rows[3][1] != models.StatusFailure {
		t.Errorf("expected FAILURE status, got %q", rows[3][1])
	}
}

func TestNoAuditTrailFailsBeforeStreaming(t *testing.T) {
	assembler := NewAssembler(&fakeAuditSource{err: db.ErrNoAuditTrail}, nil)

	var buf bytes.Buffer
	err := assembler.Write(context.Background(), &buf, "missing", nil)
	if !errors.Is(err, db.ErrNoAuditTrail) {
		t.Fatalf("expected ErrNoAuditTrail, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no bytes written before failure, got %d", buf.Len())
	}
}

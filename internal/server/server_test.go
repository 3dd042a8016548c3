package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jfellner/veritest-go/internal/db"
	"github.com/jfellner/veritest-go/internal/evidence"
	"github.com/jfellner/veritest-go/internal/models"
	"github.com/jfellner/veritest-go/internal/progress"
	"github.com/jfellner/veritest-go/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	batches []queue.ExportBatch
	err     error
}

func (f *fakeEnqueuer) EnqueueExport(batches []queue.ExportBatch) error {
	if f.err != nil {
		return f.err
	}
	f.batches = batches
	return nil
}

type fakeAuditSource struct {
	records []models.AuditRecord
	count   int
	err     error
}

func (f *fakeAuditSource) QueryAuditRecordsByJob(ctx context.Context, jobID string) ([]models.AuditRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeAuditSource) CountAuditRecords(ctx context.Context, jobID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(enq *fakeEnqueuer, audit *fakeAuditSource) (*Server, *progress.Broadcaster) {
	broadcaster := progress.NewBroadcaster()
	srv := New(enq, evidence.NewAssembler(audit, nil), audit, broadcaster, nil, nil, testLogger(), 50)
	return srv, broadcaster
}

func exportBody(n int) *bytes.Reader {
	cases := make([]models.TestCase, n)
	for i := range cases {
		cases[i] = models.TestCase{
			TestCaseID:  fmt.Sprintf("TC-%03d", i),
			Title:       "t",
			Description: "d",
		}
	}
	body, _ := json.Marshal(map[string]any{"test_cases": cases})
	return bytes.NewReader(body)
}

func TestExportPartitionsIntoBatches(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv, _ := newTestServer(enq, &fakeAuditSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/export", exportBody(120))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp exportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 3, resp.BatchCount)
	assert.Equal(t, 120, resp.TestCaseCount)

	require.Len(t, enq.batches, 3)
	assert.Len(t, enq.batches[0].TestCases, 50)
	assert.Len(t, enq.batches[1].TestCases, 50)
	assert.Len(t, enq.batches[2].TestCases, 20)
	for _, batch := range enq.batches {
		assert.Equal(t, resp.JobID, batch.JobID)
	}
}

func TestExportRejectsInvalidSubmission(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"test_cases":[{"title":"no id"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_case_id")
}

func TestExportSurfacesPartialEnqueue(t *testing.T) {
	enq := &fakeEnqueuer{err: &queue.PartialEnqueueError{
		JobID: "x", Accepted: 2, Total: 3, Err: errors.New("stream unavailable"),
	}}
	srv, _ := newTestServer(enq, &fakeAuditSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/export", exportBody(120))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["accepted_batches"])
	assert.Equal(t, float64(3), resp["total_batches"])
}

func TestEvidenceNotFound(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{err: db.ErrNoAuditTrail})

	req := httptest.NewRequest(http.MethodPost, "/api/evidence/nojob",
		strings.NewReader(`{"test_cases":[]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no audit trail")
}

func TestEvidenceStreamsArchive(t *testing.T) {
	key := "HQA-1"
	audit := &fakeAuditSource{records: []models.AuditRecord{
		{JobID: "job1", TestID: "TC-1", ExternalKey: &key, Status: models.StatusSuccess,
			RawRequest: "req", RawResponse: "resp", Timestamp: time.Now().UTC()},
	}}
	srv, _ := newTestServer(&fakeEnqueuer{}, audit)

	req := httptest.NewRequest(http.MethodPost, "/api/evidence/job1",
		strings.NewReader(`{"test_cases":[{"test_case_id":"TC-1","title":"t","description":"d"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err, "response must be a readable archive")
	assert.Len(t, zr.File, 3)
}

func TestEvidenceAssemblyFailureReturnsServerError(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{err: errors.New("audit store unreachable")})

	req := httptest.NewRequest(http.MethodPost, "/api/evidence/job1",
		strings.NewReader(`{"test_cases":[]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	// A failure before the first archive byte must not look like a bundle.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "evidence assembly failed")
}

func TestJobStatusReportsAuditCount(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{count: 120})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc123", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp["job_id"])
	assert.Equal(t, float64(120), resp["audit_records"])
}

func TestGenerateUnavailableWithoutProcessor(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"document_text":"REQ-001: ..."}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProgressWebsocketDeliversEvents(t *testing.T) {
	srv, broadcaster := newTestServer(&fakeEnqueuer{}, &fakeAuditSource{})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Published before any observer connects: must not be replayed.
	broadcaster.Publish(models.ProgressEvent{Status: models.ProgressQueued, JobID: "early"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Subscription happens inside the handler goroutine; wait for it.
	require.Eventually(t, func() bool {
		return broadcaster.ObserverCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	broadcaster.Publish(models.ProgressEvent{Status: models.ProgressBatchExported, JobID: "job1", BatchSeq: 0})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.ProgressEvent
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, models.ProgressBatchExported, event.Status)
	assert.Equal(t, "job1", event.JobID, "the pre-connect event must not have been replayed")
}

// Package server provides the veritest HTTP surface: export submission,
// live progress, evidence bundles, and generation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jfellner/veritest-go/internal/db"
	"github.com/jfellner/veritest-go/internal/evidence"
	"github.com/jfellner/veritest-go/internal/metrics"
	"github.com/jfellner/veritest-go/internal/models"
	"github.com/jfellner/veritest-go/internal/pipeline"
	"github.com/jfellner/veritest-go/internal/progress"
	"github.com/jfellner/veritest-go/internal/queue"
)

// Enqueuer dispatches export batches to the durable queue. Implemented by
// queue.Client.
type Enqueuer interface {
	EnqueueExport(batches []queue.ExportBatch) error
}

// DocumentProcessor runs document text through generation. Implemented by
// pipeline.Orchestrator. Nil when no generation backend is configured.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentText string) (*pipeline.Results, error)
}

// AuditCounter reports how many audit records a job has accumulated.
// Implemented by db.Client.
type AuditCounter interface {
	CountAuditRecords(ctx context.Context, jobID string) (int, error)
}

// Server wires the HTTP handlers to the pipeline components.
type Server struct {
	queue       Enqueuer
	assembler   *evidence.Assembler
	audit       AuditCounter
	broadcaster *progress.Broadcaster
	processor   DocumentProcessor
	metrics     *metrics.Collector
	logger      *slog.Logger

	batchSize int
}

// New creates a server. processor may be nil; metrics may be nil.
func New(
	q Enqueuer,
	assembler *evidence.Assembler,
	audit AuditCounter,
	broadcaster *progress.Broadcaster,
	processor DocumentProcessor,
	mc *metrics.Collector,
	logger *slog.Logger,
	batchSize int,
) *Server {
	if batchSize <= 0 {
		batchSize = queue.DefaultBatchSize
	}
	return &Server{
		queue:       q,
		assembler:   assembler,
		audit:       audit,
		broadcaster: broadcaster,
		processor:   processor,
		metrics:     mc,
		logger:      logger,
		batchSize:   batchSize,
	}
}

// Handler returns the routed HTTP handler with logging middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("POST /api/evidence/{jobID}", s.handleEvidence)
	mux.HandleFunc("GET /api/jobs/{jobID}", s.handleJobStatus)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /ws/progress", s.handleProgress)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return LoggingMiddleware(s.logger, mux)
}

type exportRequest struct {
	TestCases []models.TestCase `json:"test_cases"`
}

type exportResponse struct {
	JobID         string `json:"job_id"`
	BatchCount    int    `json:"batch_count"`
	TestCaseCount int    `json:"test_case_count"`
}

// handleExport accepts the approved test cases, partitions them into batches
// under a fresh job ID, and enqueues every batch. The request succeeds only
// once the queue has accepted all batches.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := models.ValidateTestCases(req.TestCases); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.New().String()[:8]
	batches := queue.SplitBatches(jobID, req.TestCases, s.batchSize)

	start := time.Now()
	err := s.queue.EnqueueExport(batches)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpEnqueue, time.Since(start))
	}
	if err != nil {
		var partial *queue.PartialEnqueueError
		if errors.As(err, &partial) {
			// Accepted batches will still be delivered; the client must know
			// how far the enqueue got.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":            "enqueue incomplete",
				"job_id":           jobID,
				"accepted_batches": partial.Accepted,
				"total_batches":    partial.Total,
			})
			return
		}
		writeError(w, http.StatusBadGateway, fmt.Sprintf("enqueue failed: %v", err))
		return
	}

	slog.Info("export accepted", "job_id", jobID, "test_cases", len(req.TestCases), "batches", len(batches))

	s.broadcaster.Publish(models.ProgressEvent{
		Status:  models.ProgressQueued,
		Message: fmt.Sprintf("%d test cases queued in %d batches", len(req.TestCases), len(batches)),
		JobID:   jobID,
	})

	writeJSON(w, http.StatusAccepted, exportResponse{
		JobID:         jobID,
		BatchCount:    len(batches),
		TestCaseCount: len(req.TestCases),
	})
}

type evidenceRequest struct {
	TestCases []models.TestCase `json:"test_cases"`
}

// countingWriter tracks whether any response byte has been written, which
// decides if an assembly failure can still change the HTTP status.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// handleEvidence streams the evidence bundle for a job. "No audit trail" is a
// 404, any other failure before the first byte is a 500; once streaming has
// begun, failures can only be logged.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	var req evidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "evidence_"+jobID+".zip"))

	cw := &countingWriter{w: w}
	if err := s.assembler.Write(r.Context(), cw, jobID, req.TestCases); err != nil {
		if cw.n == 0 {
			// Nothing is on the wire yet; the status can still change.
			w.Header().Del("Content-Type")
			w.Header().Del("Content-Disposition")
			if errors.Is(err, db.ErrNoAuditTrail) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("no audit trail for job %s", jobID))
				return
			}
			s.logger.Error("evidence assembly failed", "job_id", jobID, "error", err)
			writeError(w, http.StatusInternalServerError, "evidence assembly failed")
			return
		}
		// Headers are already on the wire; the truncated archive is the
		// client's signal.
		s.logger.Error("evidence assembly failed mid-stream", "job_id", jobID, "error", err)
	}
}

// handleJobStatus reports how many audit records a job has accumulated.
// Completion is an observed property: the client compares the count against
// the test case count from its submit response.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	start := time.Now()
	count, err := s.audit.CountAuditRecords(r.Context(), jobID)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpAuditQuery, time.Since(start))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("query audit log: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":        jobID,
		"audit_records": count,
	})
}

type generateRequest struct {
	DocumentText string `json:"document_text"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "generation backend not configured")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.DocumentText == "" {
		writeError(w, http.StatusBadRequest, "document_text is required")
		return
	}

	results, err := s.processor.ProcessDocument(r.Context(), req.DocumentText)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("generation failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

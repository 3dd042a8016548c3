// Package export implements the queue worker that submits one batch of test
// cases to the external tracker and records the outcome.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfellner/veritest-go/internal/metrics"
	"github.com/jfellner/veritest-go/internal/models"
	"github.com/jfellner/veritest-go/internal/progress"
	"github.com/jfellner/veritest-go/internal/queue"
	"github.com/jfellner/veritest-go/internal/secrets"
	"github.com/jfellner/veritest-go/internal/tracker"
)

// AuditStore appends export attempt records. Implemented by db.Client.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec models.AuditRecord) error
}

// TrackerClient performs the bulk create call. Implemented by tracker.Client.
type TrackerClient interface {
	BulkCreate(ctx context.Context, creds tracker.Credentials, cases []models.TestCase) (*tracker.BulkResult, error)
}

// Exporter processes export batches delivered by the queue. A batch either
// succeeds for every contained test case or fails for every contained test
// case; there is no partial outcome. The exporter never retries; redelivery
// is the queue's policy.
type Exporter struct {
	secrets     secrets.Resolver
	tracker     TrackerClient
	audit       AuditStore
	broadcaster *progress.Broadcaster
	metrics     *metrics.Collector

	userSecretName  string
	tokenSecretName string
}

// New creates an exporter. The metrics collector may be nil.
func New(
	resolver secrets.Resolver,
	trackerClient TrackerClient,
	audit AuditStore,
	broadcaster *progress.Broadcaster,
	mc *metrics.Collector,
	userSecretName, tokenSecretName string,
) *Exporter {
	return &Exporter{
		secrets:         resolver,
		tracker:         trackerClient,
		audit:           audit,
		broadcaster:     broadcaster,
		metrics:         mc,
		userSecretName:  userSecretName,
		tokenSecretName: tokenSecretName,
	}
}

// ExportBatch is the queue.BatchHandler entry point.
func (e *Exporter) ExportBatch(ctx context.Context, batch queue.ExportBatch) error {
	creds, err := e.resolveCredentials(ctx)
	if err != nil {
		// No tracker call was attempted: audit every item with an empty
		// request payload so the evidence shows the batch never left.
		e.auditBatch(ctx, batch, nil, "", err.Error())
		e.publishFailure(batch, fmt.Sprintf("credential resolution failed: %v", err))
		return err
	}

	start := time.Now()
	result, err := e.tracker.BulkCreate(ctx, creds, batch.TestCases)
	if e.metrics != nil {
		e.metrics.RecordTiming(metrics.OpTrackerCall, time.Since(start))
	}

	if err != nil {
		rawReq, rawResp := "", err.Error()
		if result != nil {
			rawReq = result.RawRequest
			if result.RawResponse != "" {
				rawResp = result.RawResponse
			}
		}

		msg := fmt.Sprintf("tracker call failed: %v", err)
		if errors.Is(err, tracker.ErrResponseMismatch) {
			// Positional correspondence is broken; no key may be trusted.
			msg = fmt.Sprintf("tracker response consistency error: %v", err)
		}

		e.auditBatch(ctx, batch, nil, rawReq, rawResp)
		e.publishFailure(batch, msg)
		return err
	}

	e.auditBatch(ctx, batch, result.Keys, result.RawRequest, result.RawResponse)

	e.broadcaster.Publish(models.ProgressEvent{
		Status:    models.ProgressBatchExported,
		Message:   fmt.Sprintf("batch %d/%d exported (%d test cases)", batch.Seq+1, batch.TotalBatches, len(batch.TestCases)),
		JobID:     batch.JobID,
		BatchSeq:  batch.Seq,
		IssueKeys: result.Keys,
	})

	slog.Info("batch exported", "job_id", batch.JobID, "seq", batch.Seq, "issues", len(result.Keys))
	return nil
}

func (e *Exporter) resolveCredentials(ctx context.Context) (tracker.Credentials, error) {
	user, err := e.secrets.Resolve(ctx, e.userSecretName)
	if err != nil {
		return tracker.Credentials{}, err
	}
	token, err := e.secrets.Resolve(ctx, e.tokenSecretName)
	if err != nil {
		return tracker.Credentials{}, err
	}
	return tracker.Credentials{User: user, Token: token}, nil
}

// auditBatch writes one record per test case. keys is nil for a failed batch;
// non-nil keys are mapped onto test cases by position. A failed audit write
// is logged and never escalated: auditing must not take down the export it
// documents.
func (e *Exporter) auditBatch(ctx context.Context, batch queue.ExportBatch, keys []string, rawReq, rawResp string) {
	status := models.StatusFailure
	if keys != nil {
		status = models.StatusSuccess
	}
	// Strictly increasing timestamps per record, so the audit query's
	// timestamp ordering reproduces the batch order.
	base := time.Now().UTC()

	for i, tc := range batch.TestCases {
		rec := models.AuditRecord{
			JobID:       batch.JobID,
			TestID:      tc.TestCaseID,
			Status:      status,
			RawRequest:  rawReq,
			RawResponse: rawResp,
			Timestamp:   base.Add(time.Duration(i)),
		}
		if keys != nil && i < len(keys) {
			key := keys[i]
			rec.ExternalKey = &key
		}

		start := time.Now()
		err := e.audit.InsertAuditRecord(ctx, rec)
		if e.metrics != nil {
			e.metrics.RecordTiming(metrics.OpAuditWrite, time.Since(start))
		}
		if err != nil {
			slog.Warn("failed to write audit record",
				"job_id", batch.JobID, "test_id", tc.TestCaseID, "status", status, "error", err)
		}
	}
}

func (e *Exporter) publishFailure(batch queue.ExportBatch, msg string) {
	e.broadcaster.Publish(models.ProgressEvent{
		Status:   models.ProgressBatchFailed,
		Message:  msg,
		JobID:    batch.JobID,
		BatchSeq: batch.Seq,
	})
}

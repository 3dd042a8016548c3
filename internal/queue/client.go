package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds queue connection configuration.
type Config struct {
	URL     string
	Stream  string
	Subject string
}

// Client publishes export batches to a durable JetStream work queue.
type Client struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg Config
}

// PartialEnqueueError reports an enqueue that failed after some batches were
// already accepted by the queue. The accepted batches will still be delivered.
type PartialEnqueueError struct {
	JobID    string
	Accepted int
	Total    int
	Err      error
}

func (e *PartialEnqueueError) Error() string {
	return fmt.Sprintf("job %s: enqueued %d of %d batches: %v", e.JobID, e.Accepted, e.Total, e.Err)
}

func (e *PartialEnqueueError) Unwrap() error { return e.Err }

// NewClient connects to NATS and ensures the export stream exists. The stream
// retains messages until acknowledged, which is what makes enqueued batches
// survive process restarts.
func NewClient(cfg Config) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
		}
	}

	slog.Info("export queue ready", "stream", cfg.Stream, "subject", cfg.Subject)
	return &Client{nc: nc, js: js, cfg: cfg}, nil
}

// EnqueueExport publishes every batch to the work queue. It returns only when
// all batches have been acknowledged by the stream. On failure the returned
// PartialEnqueueError states how many batches were already accepted; those
// are not withdrawn.
func (c *Client) EnqueueExport(batches []ExportBatch) error {
	for i, batch := range batches {
		data, err := json.Marshal(batch)
		if err != nil {
			return &PartialEnqueueError{JobID: batch.JobID, Accepted: i, Total: len(batches), Err: err}
		}

		msg := nats.NewMsg(c.cfg.Subject)
		msg.Data = data
		// Idempotency hint: JetStream deduplicates on Nats-Msg-Id within its
		// dedup window, so a client retry of the whole submit does not double
		// the accepted batches.
		msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s-%d", batch.JobID, batch.Seq))

		if _, err := c.js.PublishMsg(msg); err != nil {
			return &PartialEnqueueError{JobID: batch.JobID, Accepted: i, Total: len(batches), Err: err}
		}
		slog.Debug("batch enqueued", "job_id", batch.JobID, "seq", batch.Seq, "size", len(batch.TestCases))
	}
	return nil
}

// Close drains the NATS connection.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		slog.Warn("failed to drain NATS connection", "error", err)
	}
}

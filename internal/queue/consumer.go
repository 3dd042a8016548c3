package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// BatchHandler processes one delivered export batch. Returning an error
// leaves the message unacknowledged so the queue redelivers it after AckWait.
// Handlers must therefore be safe to invoke more than once per batch.
type BatchHandler func(ctx context.Context, batch ExportBatch) error

// ackWait bounds one worker attempt; redelivery after this is the queue's
// retry policy, not the worker's.
const ackWait = 5 * time.Minute

const maxDeliver = 5

// Consumer binds a durable worker subscription to a batch handler.
type Consumer struct {
	sub     *nats.Subscription
	handler BatchHandler
}

// StartConsumer subscribes to the export subject with a durable queue group,
// so multiple server processes share the batch workload. Each delivery is
// handled on its own goroutine per the subscription, independent of other
// batches of the same job.
func (c *Client) StartConsumer(ctx context.Context, handler BatchHandler) (*Consumer, error) {
	sub, err := c.js.QueueSubscribe(c.cfg.Subject, "export-workers", func(msg *nats.Msg) {
		var batch ExportBatch
		if err := json.Unmarshal(msg.Data, &batch); err != nil {
			// A payload that cannot be decoded will never succeed; park it.
			slog.Error("discarding undecodable export batch", "error", err)
			if err := msg.Term(); err != nil {
				slog.Warn("failed to terminate message", "error", err)
			}
			return
		}

		slog.Info("export batch received", "job_id", batch.JobID, "seq", batch.Seq, "size", len(batch.TestCases))

		if err := handler(ctx, batch); err != nil {
			slog.Error("export batch failed", "job_id", batch.JobID, "seq", batch.Seq, "error", err)
			if err := msg.Nak(); err != nil {
				slog.Warn("failed to nak message", "job_id", batch.JobID, "error", err)
			}
			return
		}

		if err := msg.Ack(); err != nil {
			slog.Warn("failed to ack message", "job_id", batch.JobID, "error", err)
		}
	},
		nats.Durable("export-workers"),
		nats.ManualAck(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{sub: sub, handler: handler}, nil
}

// Stop unsubscribes the consumer. In-flight batches finish their attempt;
// unacknowledged ones are redelivered elsewhere.
func (c *Consumer) Stop() {
	if err := c.sub.Drain(); err != nil {
		slog.Warn("failed to drain consumer subscription", "error", err)
	}
}

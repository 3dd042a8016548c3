// Package queue partitions export jobs into batches and dispatches them over
// a durable NATS JetStream work queue.
package queue

import (
	"github.com/jfellner/veritest-go/internal/models"
)

// DefaultBatchSize bounds how many test cases travel in one work item.
const DefaultBatchSize = 50

// ExportBatch is one unit of asynchronous export work. Consumed exactly once
// per delivery by a worker; redelivery of the same batch is expected under
// the queue's at-least-once contract.
type ExportBatch struct {
	JobID        string            `json:"job_id"`
	Seq          int               `json:"seq"`
	TotalBatches int               `json:"total_batches"`
	TestCases    []models.TestCase `json:"test_cases"`
}

// SplitBatches partitions test cases into contiguous batches of at most size,
// preserving the original order. Concatenating the returned batches yields
// the input exactly.
func SplitBatches(jobID string, cases []models.TestCase, size int) []ExportBatch {
	if size <= 0 {
		size = DefaultBatchSize
	}

	total := (len(cases) + size - 1) / size
	batches := make([]ExportBatch, 0, total)
	for i := 0; i < len(cases); i += size {
		end := min(i+size, len(cases))
		batches = append(batches, ExportBatch{
			JobID:        jobID,
			Seq:          len(batches),
			TotalBatches: total,
			TestCases:    cases[i:end],
		})
	}
	return batches
}

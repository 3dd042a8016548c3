package models

// Progress event statuses pushed to live observers.
const (
	ProgressQueued         = "queued"
	ProgressBatchExported  = "batch_exported"
	ProgressBatchFailed    = "batch_failed"
	ProgressGenerating     = "generating"
	ProgressResultsReady   = "results_ready"
	ProgressPipelineFailed = "pipeline_failed"
)

// ProgressEvent is a transient live-update frame. Events are broadcast to
// currently connected observers only; there is no replay buffer.
type ProgressEvent struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	JobID     string   `json:"job_id,omitempty"`
	BatchSeq  int      `json:"batch_seq,omitempty"`
	IssueKeys []string `json:"issue_keys,omitempty"`
	Payload   any      `json:"payload,omitempty"`
}

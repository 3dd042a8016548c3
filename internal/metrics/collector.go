// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Enqueue       *OperationSnapshot `json:"enqueue,omitempty"`
	TrackerCall   *OperationSnapshot `json:"tracker_call,omitempty"`
	AuditWrite    *OperationSnapshot `json:"audit_write,omitempty"`
	AuditQuery    *OperationSnapshot `json:"audit_query,omitempty"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	EvidenceBuild *OperationSnapshot `json:"evidence_build,omitempty"`
}

// Operation names for the collector.
const (
	OpEnqueue       = "enqueue"
	OpTrackerCall   = "tracker_call"
	OpAuditWrite    = "audit_write"
	OpAuditQuery    = "audit_query"
	OpLLMGenerate   = "llm_generate"
	OpEvidenceBuild = "evidence_build"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Enqueue:       snapshotOp(c.ops[OpEnqueue]),
		TrackerCall:   snapshotOp(c.ops[OpTrackerCall]),
		AuditWrite:    snapshotOp(c.ops[OpAuditWrite]),
		AuditQuery:    snapshotOp(c.ops[OpAuditQuery]),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate]),
		EvidenceBuild: snapshotOp(c.ops[OpEvidenceBuild]),
	}
}

// Package metrics provides in-process measurement sinks for the engine,
// browser pool, and scheduler. Sinks are write-only from the caller's side;
// a failed or slow sink must never affect execution correctness, so all
// operations here are lock-free counter updates.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/ternarybob/agito/internal/interfaces"
)

// Snapshot is a point-in-time copy of collected counters.
type Snapshot struct {
	WorkflowsCompleted int64 `json:"workflows_completed"`
	WorkflowsFailed    int64 `json:"workflows_failed"`
	StepsExecuted      int64 `json:"steps_executed"`
	WorkflowTimeMs     int64 `json:"workflow_time_ms"`
	ResourcesAcquired  int64 `json:"resources_acquired"`
	ResourcesReleased  int64 `json:"resources_released"`
	ResourceUsageMs    int64 `json:"resource_usage_ms"`
	ResourceErrors     int64 `json:"resource_errors"`
}

// Sink is an atomic in-process MetricsSink implementation.
type Sink struct {
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	stepsExecuted      atomic.Int64
	workflowTimeMs     atomic.Int64
	resourcesAcquired  atomic.Int64
	resourcesReleased  atomic.Int64
	resourceUsageMs    atomic.Int64
	resourceErrors     atomic.Int64
}

// NewSink creates an in-process metrics sink.
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) RecordWorkflow(success bool, stepCount int, duration time.Duration) {
	if success {
		s.workflowsCompleted.Add(1)
	} else {
		s.workflowsFailed.Add(1)
	}
	s.stepsExecuted.Add(int64(stepCount))
	s.workflowTimeMs.Add(duration.Milliseconds())
}

func (s *Sink) RecordAcquire() {
	s.resourcesAcquired.Add(1)
}

func (s *Sink) RecordRelease(usage time.Duration) {
	s.resourcesReleased.Add(1)
	s.resourceUsageMs.Add(usage.Milliseconds())
}

func (s *Sink) RecordResourceError() {
	s.resourceErrors.Add(1)
}

// GetSnapshot returns a copy of the current counters.
func (s *Sink) GetSnapshot() Snapshot {
	return Snapshot{
		WorkflowsCompleted: s.workflowsCompleted.Load(),
		WorkflowsFailed:    s.workflowsFailed.Load(),
		StepsExecuted:      s.stepsExecuted.Load(),
		WorkflowTimeMs:     s.workflowTimeMs.Load(),
		ResourcesAcquired:  s.resourcesAcquired.Load(),
		ResourcesReleased:  s.resourcesReleased.Load(),
		ResourceUsageMs:    s.resourceUsageMs.Load(),
		ResourceErrors:     s.resourceErrors.Load(),
	}
}

// NoopSink discards all measurements.
type NoopSink struct{}

func (NoopSink) RecordWorkflow(bool, int, time.Duration) {}
func (NoopSink) RecordAcquire()                          {}
func (NoopSink) RecordRelease(time.Duration)             {}
func (NoopSink) RecordResourceError()                    {}

var _ interfaces.MetricsSink = (*Sink)(nil)
var _ interfaces.MetricsSink = NoopSink{}

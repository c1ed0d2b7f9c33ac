package models

import (
	"time"
)

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// StepResult records one attempted step: its payload on success or error
// message on failure, in original step order.
type StepResult struct {
	Index     int           `json:"index"`
	Type      StepType      `json:"type"`
	Name      string        `json:"name,omitempty"`
	Success   bool          `json:"success"`
	Value     interface{}   `json:"value,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Execution is one run of a workflow. Owned exclusively by the engine
// invocation that created it; immutable once Status leaves running.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      ExecutionStatus        `json:"status"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	Variables   map[string]interface{} `json:"variables"`
	Results     []StepResult           `json:"results"`
	Errors      []string               `json:"errors,omitempty"`
	CurrentStep int                    `json:"current_step"`
}

// Duration returns the wall-clock execution time, or time since start when
// the execution is still running.
func (e *Execution) Duration() time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return time.Since(e.StartTime)
}

// Finished reports whether the execution reached a terminal status.
func (e *Execution) Finished() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

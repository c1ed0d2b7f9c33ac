package common

import (
	"github.com/google/uuid"
)

// NewWorkflowID generates a unique workflow ID with the "wf_" prefix
func NewWorkflowID() string {
	return "wf_" + uuid.New().String()
}

// NewExecutionID generates a unique execution ID with the "exec_" prefix
func NewExecutionID() string {
	return "exec_" + uuid.New().String()
}

// NewJobID generates a unique scheduled job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRunID generates a unique job execution ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry lookups and pool capacity.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrJobNotFound      = errors.New("scheduled job not found")
	ErrPoolExhausted    = errors.New("browser pool exhausted")
)

// ValidationError reports a rejected workflow or job definition. The
// definition is never registered when one of these is returned.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err as a ValidationError for the given field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StepError is a step-scoped execution failure carrying the step index and type.
type StepError struct {
	Index int
	Type  StepType
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Type, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// WorkflowError aggregates a failed execution. For sequential runs with
// continue_on_error=false it wraps the first aborting StepError.
type WorkflowError struct {
	WorkflowID  string
	ExecutionID string
	Err         error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s execution %s failed: %v", e.WorkflowID, e.ExecutionID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// WorkflowConfig controls how a workflow's steps are executed.
type WorkflowConfig struct {
	// Timeout bounds the whole execution. Zero means the engine default.
	Timeout time.Duration `json:"timeout,omitempty"`
	// RetryAttempts is the default retry limit for scheduled jobs that
	// enable retries without setting MaxRetries themselves.
	RetryAttempts int `json:"retry_attempts,omitempty"`
	// ContinueOnError keeps a sequential execution going past failed steps.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
	// Parallel fans all steps out concurrently against a snapshot of the
	// initial variables. No cross-step variable propagation in this mode.
	Parallel bool `json:"parallel,omitempty"`
}

// Workflow is an immutable definition of an automation sequence. Created via
// the engine, never mutated, deleted explicitly.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Steps       []Step         `json:"steps" validate:"required,min=1"`
	Config      WorkflowConfig `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

var workflowValidator = validator.New()

// Validate validates the workflow definition structure and each step.
func (w *Workflow) Validate() error {
	if err := workflowValidator.Struct(w); err != nil {
		return NewValidationError("workflow", err)
	}

	if len(w.Steps) == 0 {
		return NewValidationError("steps", errors.New("workflow must have at least one step"))
	}

	for i := range w.Steps {
		if err := w.Steps[i].Validate(); err != nil {
			return NewValidationError(fmt.Sprintf("steps[%d]", i), err)
		}
	}

	return nil
}

// PoolStats is a point-in-time snapshot of browser pool utilization.
// Observability only; callers must not base control decisions on it.
type PoolStats struct {
	Total        int `json:"total"`
	InUse        int `json:"in_use"`
	Available    int `json:"available"`
	MaxInstances int `json:"max_instances"`
}

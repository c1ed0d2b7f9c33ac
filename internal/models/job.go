package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field cron expressions plus descriptors
// like @hourly, matching what the scheduler registers.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule parses a cron expression, returning a ValidationError when
// it cannot be scheduled.
func ValidateSchedule(expr string) error {
	if expr == "" {
		return NewValidationError("schedule", errors.New("cron expression is required"))
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return NewValidationError("schedule", fmt.Errorf("invalid cron expression %q: %w", expr, err))
	}
	return nil
}

// ScheduledJob binds a workflow to a recurring cron trigger. Counters are
// mutated by the scheduler; RunCount increments on every execution attempt,
// retries included.
type ScheduledJob struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name" validate:"required"`
	WorkflowID     string                 `json:"workflow_id" validate:"required"`
	Schedule       string                 `json:"schedule" validate:"required"`
	Timezone       string                 `json:"timezone,omitempty"`
	Enabled        bool                   `json:"enabled"`
	RetryOnFailure bool                   `json:"retry_on_failure"`
	MaxRetries     int                    `json:"max_retries"`
	Variables      map[string]interface{} `json:"variables,omitempty"`

	RunCount     int64      `json:"run_count"`
	SuccessCount int64      `json:"success_count"`
	FailureCount int64      `json:"failure_count"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate validates the job definition. Workflow existence is checked by the
// scheduler against the engine registry, not here.
func (j *ScheduledJob) Validate() error {
	if j.Name == "" {
		return NewValidationError("name", errors.New("job name is required"))
	}
	if j.WorkflowID == "" {
		return NewValidationError("workflow_id", errors.New("workflow reference is required"))
	}
	if err := ValidateSchedule(j.Schedule); err != nil {
		return err
	}
	if j.Timezone != "" {
		if _, err := time.LoadLocation(j.Timezone); err != nil {
			return NewValidationError("timezone", fmt.Errorf("invalid timezone %q: %w", j.Timezone, err))
		}
	}
	if j.MaxRetries < 0 {
		return NewValidationError("max_retries", errors.New("max_retries cannot be negative"))
	}
	return nil
}

// CronSpec returns the schedule expression with the job timezone applied.
func (j *ScheduledJob) CronSpec() string {
	if j.Timezone != "" {
		return "CRON_TZ=" + j.Timezone + " " + j.Schedule
	}
	return j.Schedule
}

// ScheduledJobPatch carries the mutable fields of a ScheduledJob for partial
// updates. Nil pointers leave the corresponding field unchanged; identity and
// counters are never touched by a patch.
type ScheduledJobPatch struct {
	Name           *string                `json:"name,omitempty"`
	WorkflowID     *string                `json:"workflow_id,omitempty"`
	Schedule       *string                `json:"schedule,omitempty"`
	Timezone       *string                `json:"timezone,omitempty"`
	Enabled        *bool                  `json:"enabled,omitempty"`
	RetryOnFailure *bool                  `json:"retry_on_failure,omitempty"`
	MaxRetries     *int                   `json:"max_retries,omitempty"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// Apply merges the patch into job.
func (p *ScheduledJobPatch) Apply(job *ScheduledJob) {
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.WorkflowID != nil {
		job.WorkflowID = *p.WorkflowID
	}
	if p.Schedule != nil {
		job.Schedule = *p.Schedule
	}
	if p.Timezone != nil {
		job.Timezone = *p.Timezone
	}
	if p.Enabled != nil {
		job.Enabled = *p.Enabled
	}
	if p.RetryOnFailure != nil {
		job.RetryOnFailure = *p.RetryOnFailure
	}
	if p.MaxRetries != nil {
		job.MaxRetries = *p.MaxRetries
	}
	if p.Variables != nil {
		job.Variables = p.Variables
	}
	job.UpdatedAt = time.Now()
}

// JobExecutionStatus is the outcome of one scheduled job trigger.
type JobExecutionStatus string

const (
	JobExecutionRunning JobExecutionStatus = "running"
	JobExecutionSuccess JobExecutionStatus = "success"
	JobExecutionFailed  JobExecutionStatus = "failed"
	// JobExecutionError marks triggers that never produced an execution,
	// e.g. the referenced workflow was deleted.
	JobExecutionError JobExecutionStatus = "error"
)

// JobExecution is one record per trigger of a scheduled job: cron firing,
// manual invocation, or retry.
type JobExecution struct {
	ID           string             `json:"id"`
	JobID        string             `json:"job_id"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Status       JobExecutionStatus `json:"status"`
	Manual       bool               `json:"manual"`
	RetryAttempt int                `json:"retry_attempt"`
	Error        string             `json:"error,omitempty"`
	Execution    *Execution         `json:"execution,omitempty"`
}

package interfaces

import (
	"context"

	"github.com/ternarybob/agito/internal/models"
)

// SchedulerService owns the recurring-trigger lifecycle and retry policy for
// workflows.
type SchedulerService interface {
	// Start registers cron entries for all enabled jobs and begins firing
	Start() error

	// Stop cancels every live timer without deleting job definitions (idempotent)
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// CreateScheduledJob validates and registers a job; its timer starts
	// immediately when the scheduler is running and the job is enabled
	CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error)

	// UpdateScheduledJob applies a patch, restarting the job timer as needed
	UpdateScheduledJob(ctx context.Context, id string, patch *models.ScheduledJobPatch) (*models.ScheduledJob, error)

	// DeleteScheduledJob removes a job and cancels any pending timers
	DeleteScheduledJob(ctx context.Context, id string) error

	// GetScheduledJob returns a job by ID, models.ErrJobNotFound when unknown
	GetScheduledJob(ctx context.Context, id string) (*models.ScheduledJob, error)

	// ListScheduledJobs returns all registered jobs
	ListScheduledJobs(ctx context.Context) ([]*models.ScheduledJob, error)

	// StartJob / StopJob control the per-job cron timer
	StartJob(id string) error
	StopJob(id string) error

	// ExecuteJob triggers a job immediately; manual triggers do not advance NextRun
	ExecuteJob(ctx context.Context, id string, manual bool) (*models.JobExecution, error)

	// GetJobHistory returns the bounded execution history, optionally
	// filtered by job ID (empty string = all jobs)
	GetJobHistory(jobID string, limit int) []*models.JobExecution
}

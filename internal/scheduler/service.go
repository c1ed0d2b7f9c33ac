package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/models"
)

// Config holds scheduler tuning parameters.
type Config struct {
	Timezone     string
	HistoryLimit int
}

// Service implements SchedulerService. Each enabled job owns one cron entry;
// retry timers live in a separate map so they can be cancelled independently
// of the cron schedule.
type Service struct {
	storage interfaces.JobStorage
	engine  interfaces.WorkflowService
	logger  arbor.ILogger
	config  Config

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	retries map[string]*time.Timer
	running bool

	// jobLocks serializes counter updates per job. Overlapping attempts for
	// the same job run concurrently but persist their counters one at a time,
	// so no increment is lost to a concurrent read-modify-write.
	jobLocks map[string]*sync.Mutex

	history *jobHistory

	// newTimer is swapped out in tests to fire retries without waiting.
	newTimer func(d time.Duration, fn func()) *time.Timer
}

// NewService creates a scheduler backed by the given job storage and workflow
// engine.
func NewService(storage interfaces.JobStorage, engine interfaces.WorkflowService, logger arbor.ILogger, config Config) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("job storage is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 1000
	}

	location := time.Local
	if config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", config.Timezone, err)
		}
		location = loc
	}

	return &Service{
		storage:  storage,
		engine:   engine,
		logger:   logger,
		config:   config,
		cron:     cron.New(cron.WithLocation(location)),
		entries:  make(map[string]cron.EntryID),
		retries:  make(map[string]*time.Timer),
		jobLocks: make(map[string]*sync.Mutex),
		history:  newJobHistory(config.HistoryLimit),
		newTimer: time.AfterFunc,
	}, nil
}

// Start registers cron entries for all enabled jobs and begins firing them.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	jobs, err := s.storage.ListJobs(context.Background())
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	registered := 0
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := s.register(job); err != nil {
			s.logger.Error().
				Str("job_id", job.ID).
				Str("schedule", job.Schedule).
				Err(err).
				Msg("Failed to register scheduled job")
			continue
		}
		registered++
	}

	s.cron.Start()

	s.logger.Info().
		Int("jobs", registered).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron runner and cancels every pending retry timer. Job
// definitions are untouched. Safe to call more than once.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cron.Stop()

	for id, timer := range s.retries {
		timer.Stop()
		delete(s.retries, id)
	}
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// jobLock returns the mutex guarding one job's persisted counters.
func (s *Service) jobLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.jobLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.jobLocks[id] = lock
	}
	return lock
}

// CreateScheduledJob validates a job definition and persists it. The cron
// entry is registered immediately when the scheduler is running and the job
// is enabled.
func (s *Service) CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error) {
	if job == nil {
		return nil, models.NewValidationError("job", fmt.Errorf("job is required"))
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	workflow, err := s.engine.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", job.WorkflowID, err)
	}
	if job.RetryOnFailure && job.MaxRetries == 0 {
		job.MaxRetries = workflow.Config.RetryAttempts
	}

	if job.ID == "" {
		job.ID = common.NewJobID()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.mu.Lock()
	shouldRegister := s.running && job.Enabled
	s.mu.Unlock()

	if shouldRegister {
		if err := s.register(job); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("workflow_id", job.WorkflowID).
		Str("schedule", job.Schedule).
		Bool("enabled", job.Enabled).
		Msg("Scheduled job created")

	return job, nil
}

// UpdateScheduledJob applies a partial update. Schedule or enablement changes
// replace the job's cron entry; disabling also cancels any pending retry.
func (s *Service) UpdateScheduledJob(ctx context.Context, id string, patch *models.ScheduledJobPatch) (*models.ScheduledJob, error) {
	if patch == nil {
		return nil, models.NewValidationError("patch", fmt.Errorf("patch is required"))
	}

	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(job)
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if patch.WorkflowID != nil {
		if _, err := s.engine.GetWorkflow(ctx, job.WorkflowID); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", job.WorkflowID, err)
		}
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.unregister(job.ID)
	if !job.Enabled {
		s.cancelRetry(job.ID)
	}

	s.mu.Lock()
	shouldRegister := s.running && job.Enabled
	s.mu.Unlock()

	if shouldRegister {
		if err := s.register(job); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("schedule", job.Schedule).
		Bool("enabled", job.Enabled).
		Msg("Scheduled job updated")

	return job, nil
}

// DeleteScheduledJob removes a job, its cron entry, and any pending retry.
func (s *Service) DeleteScheduledJob(ctx context.Context, id string) error {
	if _, err := s.storage.GetJob(ctx, id); err != nil {
		return err
	}

	s.unregister(id)
	s.cancelRetry(id)

	if err := s.storage.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	s.mu.Lock()
	delete(s.jobLocks, id)
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", id).
		Msg("Scheduled job deleted")

	return nil
}

// GetScheduledJob returns a job by ID with its next fire time populated from
// the live cron entry.
func (s *Service) GetScheduledJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshNextRun(job)
	return job, nil
}

// ListScheduledJobs returns all registered jobs.
func (s *Service) ListScheduledJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	jobs, err := s.storage.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		s.refreshNextRun(job)
	}
	return jobs, nil
}

// StartJob enables a job and registers its cron entry.
func (s *Service) StartJob(id string) error {
	ctx := context.Background()

	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Enabled {
		s.logger.Warn().Str("job_id", id).Msg("Job is already started")
		return nil
	}

	job.Enabled = true
	job.UpdatedAt = time.Now()
	if err := s.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.mu.Lock()
	shouldRegister := s.running
	s.mu.Unlock()

	if shouldRegister {
		if err := s.register(job); err != nil {
			return err
		}
	}

	s.logger.Info().Str("job_id", id).Msg("Job started")
	return nil
}

// StopJob disables a job, removes its cron entry, and cancels any pending
// retry timer.
func (s *Service) StopJob(id string) error {
	ctx := context.Background()

	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}

	s.unregister(id)
	s.cancelRetry(id)

	if job.Enabled {
		job.Enabled = false
		job.NextRun = nil
		job.UpdatedAt = time.Now()
		if err := s.storage.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	s.logger.Info().Str("job_id", id).Msg("Job stopped")
	return nil
}

// GetJobHistory returns retained job executions, newest first. An empty jobID
// returns history across all jobs.
func (s *Service) GetJobHistory(jobID string, limit int) []*models.JobExecution {
	return s.history.list(jobID, limit)
}

// register adds the job's cron entry and stamps NextRun. Replaces any
// existing entry for the same job.
func (s *Service) register(job *models.ScheduledJob) error {
	s.unregister(job.ID)

	id := job.ID
	entryID, err := s.cron.AddFunc(job.CronSpec(), func() {
		s.runScheduled(id)
	})
	if err != nil {
		return models.NewValidationError("schedule", fmt.Errorf("failed to register cron entry: %w", err))
	}

	s.mu.Lock()
	s.entries[job.ID] = entryID
	s.mu.Unlock()

	s.refreshNextRun(job)
	return nil
}

func (s *Service) unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
}

func (s *Service) cancelRetry(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.retries[jobID]; ok {
		timer.Stop()
		delete(s.retries, jobID)
	}
}

// refreshNextRun copies the live cron entry's next fire time onto the job.
// Entries added to a running cron may not have a computed fire time yet, so
// fall back to evaluating the schedule directly.
func (s *Service) refreshNextRun(job *models.ScheduledJob) {
	s.mu.Lock()
	entryID, ok := s.entries[job.ID]
	s.mu.Unlock()

	if !ok {
		return
	}

	entry := s.cron.Entry(entryID)
	if !entry.Next.IsZero() {
		next := entry.Next
		job.NextRun = &next
		return
	}

	if schedule, err := cron.ParseStandard(job.CronSpec()); err == nil {
		next := schedule.Next(time.Now())
		job.NextRun = &next
	}
}

var _ interfaces.SchedulerService = (*Service)(nil)

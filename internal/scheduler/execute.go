package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/models"
)

// maxRetryDelay caps the exponential backoff between retry attempts.
const maxRetryDelay = 5 * time.Minute

// ExecuteJob triggers a job immediately. Manual triggers run outside the cron
// schedule and never advance NextRun.
func (s *Service) ExecuteJob(ctx context.Context, id string, manual bool) (*models.JobExecution, error) {
	return s.execute(ctx, id, manual, 0)
}

// runScheduled is the cron callback for one job.
func (s *Service) runScheduled(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_id", jobID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled job")
		}
	}()

	if _, err := s.execute(context.Background(), jobID, false, 0); err != nil {
		s.logger.Error().
			Str("job_id", jobID).
			Err(err).
			Msg("Scheduled job trigger failed")
	}
}

// execute runs one attempt of a job. Every attempt, retries included, counts
// against RunCount and produces its own history record.
func (s *Service) execute(ctx context.Context, id string, manual bool, retryAttempt int) (*models.JobExecution, error) {
	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := &models.JobExecution{
		ID:           common.NewRunID(),
		JobID:        job.ID,
		StartTime:    now,
		Status:       models.JobExecutionRunning,
		Manual:       manual,
		RetryAttempt: retryAttempt,
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("run_id", run.ID).
		Str("workflow_id", job.WorkflowID).
		Bool("manual", manual).
		Int("retry_attempt", retryAttempt).
		Msg("Job execution started")

	exec, execErr := s.engine.Execute(ctx, job.WorkflowID, job.Variables)

	end := time.Now()
	run.EndTime = &end
	run.Execution = exec

	switch {
	case exec == nil:
		// The trigger itself failed, e.g. the workflow was deleted. No
		// retry: the next attempt would fail the same way.
		run.Status = models.JobExecutionError
		run.Error = execErr.Error()
		s.logger.Error().
			Str("job_id", job.ID).
			Str("run_id", run.ID).
			Err(execErr).
			Msg("Job trigger error")

	case execErr != nil:
		run.Status = models.JobExecutionFailed
		run.Error = execErr.Error()
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("run_id", run.ID).
			Str("execution_id", exec.ID).
			Dur("duration", end.Sub(now)).
			Err(execErr).
			Msg("Job execution failed")

	default:
		run.Status = models.JobExecutionSuccess
		s.logger.Info().
			Str("job_id", job.ID).
			Str("run_id", run.ID).
			Str("execution_id", exec.ID).
			Dur("duration", end.Sub(now)).
			Msg("Job execution completed")
	}

	s.recordAttempt(ctx, job.ID, run.Status, now, manual)

	s.history.add(run)

	if run.Status == models.JobExecutionFailed && job.RetryOnFailure && retryAttempt < job.MaxRetries {
		s.scheduleRetry(job.ID, retryAttempt+1, retryDelay(retryAttempt))
	}

	return run, nil
}

// recordAttempt folds one attempt's outcome into the persisted job counters.
// Attempts for the same job may overlap, so the read-modify-write happens on
// a fresh copy under the per-job lock.
func (s *Service) recordAttempt(ctx context.Context, jobID string, status models.JobExecutionStatus, started time.Time, manual bool) {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.storage.GetJob(ctx, jobID)
	if err != nil {
		// Deleted while the attempt was in flight. Nothing to update.
		s.logger.Warn().
			Str("job_id", jobID).
			Err(err).
			Msg("Job vanished during execution")
		return
	}

	job.RunCount++
	job.LastRun = &started
	if status == models.JobExecutionSuccess {
		job.SuccessCount++
	} else {
		job.FailureCount++
	}
	if !manual {
		s.refreshNextRun(job)
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		s.logger.Warn().
			Str("job_id", job.ID).
			Err(err).
			Msg("Failed to persist job counters")
	}
}

// retryDelay returns the backoff before the attempt following a failure at
// the given attempt number: one minute doubled per attempt, capped at five.
func retryDelay(failedAttempt int) time.Duration {
	delay := time.Minute
	for i := 0; i < failedAttempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// scheduleRetry arms a one-shot timer for the next attempt. A newer timer for
// the same job replaces any pending one, and Stop cancels them all.
func (s *Service) scheduleRetry(jobID string, attempt int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if timer, ok := s.retries[jobID]; ok {
		timer.Stop()
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Retry scheduled")

	s.retries[jobID] = s.newTimer(delay, func() {
		s.mu.Lock()
		delete(s.retries, jobID)
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("job_id", jobID).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("PANIC RECOVERED in job retry")
			}
		}()

		// Retries run through the manual path: they fire outside the cron
		// schedule and must not advance NextRun.
		if _, err := s.execute(context.Background(), jobID, true, attempt); err != nil {
			s.logger.Error().
				Str("job_id", jobID).
				Int("attempt", attempt).
				Err(err).
				Msg("Job retry failed")
		}
	})
}

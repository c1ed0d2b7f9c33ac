package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/models"
)

// Execute runs a workflow with the given seed variables. The returned
// Execution is always populated (when the workflow exists); a sequential
// abort returns it alongside a WorkflowError so callers can inspect both.
func (s *Service) Execute(ctx context.Context, workflowID string, variables map[string]interface{}) (*models.Execution, error) {
	workflow, err := s.storage.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	exec := &models.Execution{
		ID:         common.NewExecutionID(),
		WorkflowID: workflow.ID,
		Status:     models.ExecutionRunning,
		StartTime:  time.Now(),
		Variables:  copyVariables(variables),
		Results:    make([]models.StepResult, 0, len(workflow.Steps)),
	}

	s.logger.Info().
		Str("execution_id", exec.ID).
		Str("workflow_id", workflow.ID).
		Str("workflow_name", workflow.Name).
		Int("step_count", len(workflow.Steps)).
		Bool("parallel", workflow.Config.Parallel).
		Msg("Starting workflow execution")

	timeout := workflow.Config.Timeout
	if timeout <= 0 {
		timeout = s.config.WorkflowTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var execErr error
	if workflow.Config.Parallel {
		s.runParallel(execCtx, workflow, exec)
	} else {
		execErr = s.runSequential(execCtx, workflow, exec)
	}

	end := time.Now()
	exec.EndTime = &end
	if execErr != nil {
		exec.Status = models.ExecutionFailed
	} else {
		exec.Status = models.ExecutionCompleted
	}

	s.metrics.RecordWorkflow(execErr == nil, len(exec.Results), exec.Duration())
	s.history.add(exec)

	if execErr != nil {
		s.logger.Warn().
			Str("execution_id", exec.ID).
			Str("workflow_id", workflow.ID).
			Dur("duration", exec.Duration()).
			Err(execErr).
			Msg("Workflow execution failed")

		return exec, &models.WorkflowError{
			WorkflowID:  workflow.ID,
			ExecutionID: exec.ID,
			Err:         execErr,
		}
	}

	s.logger.Info().
		Str("execution_id", exec.ID).
		Str("workflow_id", workflow.ID).
		Int("result_count", len(exec.Results)).
		Int("error_count", len(exec.Errors)).
		Dur("duration", exec.Duration()).
		Msg("Workflow execution completed")

	return exec, nil
}

// runSequential executes steps strictly in order. Step i+1 only starts after
// step i's result (including worker release) is recorded, which is what makes
// output variable propagation sound.
func (s *Service) runSequential(ctx context.Context, workflow *models.Workflow, exec *models.Execution) error {
	for i := range workflow.Steps {
		step := workflow.Steps[i]
		exec.CurrentStep = i

		result, err := s.executeStep(ctx, i, &step, exec.Variables)
		exec.Results = append(exec.Results, result)

		if err != nil {
			exec.Errors = append(exec.Errors, err.Error())
			if !workflow.Config.ContinueOnError {
				return err
			}
			continue
		}

		if step.OutputVariable != "" {
			exec.Variables[step.OutputVariable] = result.Value
		}
	}

	return nil
}

// runParallel fans all steps out concurrently against a snapshot of the
// initial variables and joins all of them. Step failures are recorded but
// never cancel siblings, and results land in original step order.
func (s *Service) runParallel(ctx context.Context, workflow *models.Workflow, exec *models.Execution) {
	results := make([]models.StepResult, len(workflow.Steps))
	errMsgs := make([]string, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := range workflow.Steps {
		wg.Add(1)
		index := i
		step := workflow.Steps[i]

		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					results[index] = models.StepResult{
						Index:     index,
						Type:      step.Type,
						Name:      step.Name,
						Error:     fmt.Sprintf("panic: %v", r),
						Timestamp: time.Now(),
					}
					errMsgs = append(errMsgs, fmt.Sprintf("step %d panicked: %v", index, r))
					mu.Unlock()
				}
			}()

			snapshot := copyVariables(exec.Variables)
			result, err := s.executeStep(ctx, index, &step, snapshot)

			mu.Lock()
			results[index] = result
			if err != nil {
				errMsgs = append(errMsgs, err.Error())
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	exec.Results = results
	exec.Errors = append(exec.Errors, errMsgs...)
}

// executeStep leases a worker, runs one step, and releases the worker on
// every exit path.
func (s *Service) executeStep(ctx context.Context, index int, step *models.Step, variables map[string]interface{}) (models.StepResult, error) {
	start := time.Now()
	result := models.StepResult{
		Index:     index,
		Type:      step.Type,
		Name:      step.Name,
		Timestamp: start,
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = s.config.StepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	worker, release, err := s.pool.Acquire(stepCtx)
	if err != nil {
		stepErr := &models.StepError{Index: index, Type: step.Type, Err: err}
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, stepErr
	}
	defer release()

	value, err := s.runStep(stepCtx, worker, step, variables)
	result.Duration = time.Since(start)

	if err != nil {
		stepErr := &models.StepError{Index: index, Type: step.Type, Err: err}
		result.Error = err.Error()

		s.logger.Warn().
			Int("step_index", index).
			Str("step_type", string(step.Type)).
			Err(err).
			Msg("Step execution failed")

		return result, stepErr
	}

	result.Success = true
	result.Value = value

	s.logger.Debug().
		Int("step_index", index).
		Str("step_type", string(step.Type)).
		Dur("duration", result.Duration).
		Msg("Step execution completed")

	return result, nil
}

// copyVariables shallow-copies a variable map so executions never share or
// mutate the caller's map.
func copyVariables(variables map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		copied[k] = v
	}
	return copied
}

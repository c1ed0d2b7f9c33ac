// Package engine executes workflow definitions against the browser pool,
// sequentially or in parallel, and retains a bounded execution history.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/models"
)

// Config controls engine execution defaults.
type Config struct {
	StepTimeout     time.Duration // default per-step timeout
	WorkflowTimeout time.Duration // default whole-execution timeout
	HistoryLimit    int           // executions retained in memory
}

// Service implements the WorkflowService interface.
type Service struct {
	storage interfaces.WorkflowStorage
	pool    interfaces.BrowserPool
	metrics interfaces.MetricsSink
	logger  arbor.ILogger
	config  Config
	history *executionHistory
}

// NewService creates a workflow engine over the given storage and pool.
func NewService(storage interfaces.WorkflowStorage, pool interfaces.BrowserPool, metrics interfaces.MetricsSink, config Config, logger arbor.ILogger) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if config.StepTimeout <= 0 {
		config.StepTimeout = 30 * time.Second
	}
	if config.WorkflowTimeout <= 0 {
		config.WorkflowTimeout = 10 * time.Minute
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 100
	}

	return &Service{
		storage: storage,
		pool:    pool,
		metrics: metrics,
		logger:  logger,
		config:  config,
		history: newExecutionHistory(config.HistoryLimit),
	}, nil
}

// CreateWorkflow validates and registers a workflow definition.
func (s *Service) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, models.NewValidationError("workflow", fmt.Errorf("definition is required"))
	}

	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	workflow.ID = common.NewWorkflowID()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := s.storage.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Info().
		Str("workflow_id", workflow.ID).
		Str("workflow_name", workflow.Name).
		Int("step_count", len(workflow.Steps)).
		Bool("parallel", workflow.Config.Parallel).
		Msg("Workflow created")

	return workflow, nil
}

// GetWorkflow returns a workflow by ID.
func (s *Service) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.storage.GetWorkflow(ctx, id)
}

// ListWorkflows returns all registered workflows.
func (s *Service) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.storage.ListWorkflows(ctx)
}

// DeleteWorkflow removes a workflow definition. Jobs referencing it are the
// scheduler's concern, not validated here.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.storage.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	s.logger.Info().
		Str("workflow_id", id).
		Msg("Workflow deleted")

	return nil
}

// GetExecution returns a retained execution by ID.
func (s *Service) GetExecution(id string) (*models.Execution, bool) {
	return s.history.get(id)
}

// ListExecutions returns retained executions, most recent first.
func (s *Service) ListExecutions(limit int) []*models.Execution {
	return s.history.list(limit)
}

var _ interfaces.WorkflowService = (*Service)(nil)

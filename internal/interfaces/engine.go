package interfaces

import (
	"context"

	"github.com/ternarybob/agito/internal/models"
)

// WorkflowService manages workflow definitions and executes them against the
// browser pool.
type WorkflowService interface {
	// CreateWorkflow validates and registers a workflow definition
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)

	// GetWorkflow returns a workflow by ID, models.ErrWorkflowNotFound when unknown
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)

	// ListWorkflows returns all registered workflows
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)

	// DeleteWorkflow removes a workflow definition
	DeleteWorkflow(ctx context.Context, id string) error

	// Execute runs a workflow with the given seed variables. The returned
	// Execution is authoritative alongside the error: a sequential abort
	// returns both a failed Execution and a non-nil error.
	Execute(ctx context.Context, workflowID string, variables map[string]interface{}) (*models.Execution, error)

	// GetExecution returns a retained execution by ID
	GetExecution(id string) (*models.Execution, bool)

	// ListExecutions returns retained executions, most recent first
	ListExecutions(limit int) []*models.Execution
}

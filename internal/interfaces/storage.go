package interfaces

import (
	"context"

	"github.com/ternarybob/agito/internal/models"
)

// WorkflowStorage persists workflow definitions. The engine owns an injected
// instance instead of a package-level registry so tests can swap in doubles.
type WorkflowStorage interface {
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// JobStorage persists scheduled job definitions and their counters.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.ScheduledJob) error
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	DeleteJob(ctx context.Context, id string) error
}

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWorkflowStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	storage := NewWorkflowStorage(db, logger)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:   "wf_1",
		Name: "scrape-prices",
		Steps: []models.Step{
			{Type: models.StepNavigate, Navigate: &models.NavigateStep{URL: "https://example.com"}},
		},
		Config:    models.WorkflowConfig{ContinueOnError: true},
		CreatedAt: time.Now(),
	}
	require.NoError(t, storage.SaveWorkflow(ctx, workflow))

	loaded, err := storage.GetWorkflow(ctx, "wf_1")
	require.NoError(t, err)
	assert.Equal(t, "scrape-prices", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, models.StepNavigate, loaded.Steps[0].Type)
	assert.True(t, loaded.Config.ContinueOnError)

	listed, err := storage.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, storage.DeleteWorkflow(ctx, "wf_1"))

	_, err = storage.GetWorkflow(ctx, "wf_1")
	assert.True(t, errors.Is(err, models.ErrWorkflowNotFound))

	err = storage.DeleteWorkflow(ctx, "wf_1")
	assert.True(t, errors.Is(err, models.ErrWorkflowNotFound))
}

func TestWorkflowStorageRequiresID(t *testing.T) {
	db := newTestDB(t)
	storage := NewWorkflowStorage(db, arbor.NewLogger())

	err := storage.SaveWorkflow(context.Background(), &models.Workflow{Name: "no-id"})
	assert.Error(t, err)
}

func TestJobStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	job := &models.ScheduledJob{
		ID:         "job_1",
		Name:       "nightly",
		WorkflowID: "wf_1",
		Schedule:   "0 2 * * *",
		Enabled:    true,
		RunCount:   3,
		LastRun:    &now,
		CreatedAt:  now,
	}
	require.NoError(t, storage.SaveJob(ctx, job))

	// Counter updates persist through upsert
	job.RunCount = 4
	job.SuccessCount = 4
	require.NoError(t, storage.SaveJob(ctx, job))

	loaded, err := storage.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), loaded.RunCount)
	assert.Equal(t, int64(4), loaded.SuccessCount)
	require.NotNil(t, loaded.LastRun)

	listed, err := storage.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, storage.DeleteJob(ctx, "job_1"))

	_, err = storage.GetJob(ctx, "job_1")
	assert.True(t, errors.Is(err, models.ErrJobNotFound))
}

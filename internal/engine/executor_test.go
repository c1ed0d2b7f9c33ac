package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/metrics"
	"github.com/ternarybob/agito/internal/models"
)

// fakeWorker is a scriptable BrowserWorker standing in for a Chrome lease.
type fakeWorker struct {
	mu          sync.Mutex
	navigations []string
	evaluations []string
	clicks      []string

	navigateErr error
	evalErr     error
	evalResult  func(expression string) interface{}
	html        string
	title       string
	blockOnCtx  bool // Navigate blocks until the step context expires
}

func (w *fakeWorker) Navigate(ctx context.Context, url string) error {
	w.mu.Lock()
	w.navigations = append(w.navigations, url)
	block := w.blockOnCtx
	err := w.navigateErr
	w.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (w *fakeWorker) Title(ctx context.Context) (string, error) { return w.title, nil }
func (w *fakeWorker) HTML(ctx context.Context) (string, error) { return w.html, nil }

func (w *fakeWorker) Evaluate(ctx context.Context, expression string, out interface{}) error {
	w.mu.Lock()
	w.evaluations = append(w.evaluations, expression)
	w.mu.Unlock()

	if w.evalErr != nil {
		return w.evalErr
	}
	if out != nil && w.evalResult != nil {
		*(out.(*interface{})) = w.evalResult(expression)
	}
	return nil
}

func (w *fakeWorker) Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error) {
	return []byte("png"), nil
}

func (w *fakeWorker) PDF(ctx context.Context, landscape, printBackground bool) ([]byte, error) {
	return []byte("pdf"), nil
}

func (w *fakeWorker) Click(ctx context.Context, selector string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clicks = append(w.clicks, selector)
	return nil
}

func (w *fakeWorker) Type(ctx context.Context, selector, text string) error { return nil }
func (w *fakeWorker) Select(ctx context.Context, selector, value string) error { return nil }
func (w *fakeWorker) Sleep(ctx context.Context, d time.Duration) error { return nil }

func (w *fakeWorker) navigatedTo() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.navigations...)
}

// fakePool leases the same fakeWorker to every caller and counts lease
// lifecycle calls.
type fakePool struct {
	mu       sync.Mutex
	worker   *fakeWorker
	acquires int
	releases int
}

func (p *fakePool) Acquire(ctx context.Context) (interfaces.BrowserWorker, func(), error) {
	p.mu.Lock()
	p.acquires++
	p.mu.Unlock()

	var once sync.Once
	return p.worker, func() {
		once.Do(func() {
			p.mu.Lock()
			p.releases++
			p.mu.Unlock()
		})
	}, nil
}

func (p *fakePool) Stats() models.PoolStats { return models.PoolStats{} }
func (p *fakePool) Shutdown() error { return nil }

func (p *fakePool) leaseCounts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires, p.releases
}

// memWorkflowStorage is an in-memory WorkflowStorage for tests.
type memWorkflowStorage struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
}

func newMemWorkflowStorage() *memWorkflowStorage {
	return &memWorkflowStorage{workflows: make(map[string]*models.Workflow)}
}

func (s *memWorkflowStorage) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflow.ID] = workflow
	return nil
}

func (s *memWorkflowStorage) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, models.ErrWorkflowNotFound
	}
	return workflow, nil
}

func (s *memWorkflowStorage) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*models.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		result = append(result, workflow)
	}
	return result, nil
}

func (s *memWorkflowStorage) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return models.ErrWorkflowNotFound
	}
	delete(s.workflows, id)
	return nil
}

func newTestService(t *testing.T, worker *fakeWorker, config Config) (*Service, *memWorkflowStorage, *fakePool) {
	t.Helper()

	storage := newMemWorkflowStorage()
	pool := &fakePool{worker: worker}

	service, err := NewService(storage, pool, metrics.NoopSink{}, config, arbor.NewLogger())
	require.NoError(t, err)
	return service, storage, pool
}

func scriptStep(name, source, outputVariable string) models.Step {
	return models.Step{
		Type:           models.StepScript,
		Name:           name,
		OutputVariable: outputVariable,
		Script:         &models.ScriptStep{Source: source},
	}
}

func navigateStep(name, url string) models.Step {
	return models.Step{
		Type:     models.StepNavigate,
		Name:     name,
		Navigate: &models.NavigateStep{URL: url},
	}
}

func seedWorkflow(t *testing.T, service *Service, workflow *models.Workflow) *models.Workflow {
	t.Helper()
	created, err := service.CreateWorkflow(context.Background(), workflow)
	require.NoError(t, err)
	return created
}

func TestCreateWorkflowValidation(t *testing.T) {
	service, _, _ := newTestService(t, &fakeWorker{}, Config{})

	_, err := service.CreateWorkflow(context.Background(), &models.Workflow{Name: "no-steps"})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))

	_, err = service.CreateWorkflow(context.Background(), &models.Workflow{
		Steps: []models.Step{navigateStep("go", "https://example.com")},
	})
	require.Error(t, err, "missing name must be rejected")

	created := seedWorkflow(t, service, &models.Workflow{
		Name:  "ok",
		Steps: []models.Step{navigateStep("go", "https://example.com")},
	})
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	service, _, _ := newTestService(t, &fakeWorker{}, Config{})

	exec, err := service.Execute(context.Background(), "wf_missing", nil)
	assert.Nil(t, exec)
	assert.True(t, errors.Is(err, models.ErrWorkflowNotFound))
}

func TestSequentialOutputVariablePropagation(t *testing.T) {
	worker := &fakeWorker{
		title: "Example",
		evalResult: func(string) interface{} { return "launch" },
	}
	service, _, _ := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name: "propagate",
		Steps: []models.Step{
			scriptStep("pick-page", "document.page", "page"),
			navigateStep("open", "https://example.com/{{page}}"),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, map[string]interface{}{"seed": "s1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Equal(t, "launch", exec.Variables["page"])
	assert.Equal(t, "s1", exec.Variables["seed"])
	assert.Equal(t, []string{"https://example.com/launch"}, worker.navigatedTo())
}

func TestSequentialAbortsOnFailedStep(t *testing.T) {
	worker := &fakeWorker{navigateErr: errors.New("net::ERR_CONNECTION_REFUSED")}
	service, _, pool := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name: "abort",
		Steps: []models.Step{
			navigateStep("first", "https://a.example"),
			navigateStep("second", "https://b.example"),
			navigateStep("third", "https://c.example"),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.Error(t, err)
	require.NotNil(t, exec, "failed executions still return the record")

	assert.Equal(t, models.ExecutionFailed, exec.Status)
	assert.Len(t, exec.Results, 1, "steps after the failure must not run")
	assert.Len(t, exec.Errors, 1)
	assert.NotNil(t, exec.EndTime)

	var workflowErr *models.WorkflowError
	require.True(t, errors.As(err, &workflowErr))
	assert.Equal(t, exec.ID, workflowErr.ExecutionID)

	var stepErr *models.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 0, stepErr.Index)

	acquires, releases := pool.leaseCounts()
	assert.Equal(t, 1, acquires)
	assert.Equal(t, acquires, releases, "every lease must be released")
}

func TestSequentialContinueOnError(t *testing.T) {
	worker := &fakeWorker{navigateErr: errors.New("timeout"), evalResult: func(string) interface{} { return 42 }}
	service, _, pool := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:   "tolerant",
		Config: models.WorkflowConfig{ContinueOnError: true},
		Steps: []models.Step{
			navigateStep("broken", "https://down.example"),
			scriptStep("count", "1 + 41", "answer"),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err, "a run that reaches the end is completed even with step failures")

	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Len(t, exec.Results, 2)
	assert.False(t, exec.Results[0].Success)
	assert.True(t, exec.Results[1].Success)
	assert.Len(t, exec.Errors, 1)
	assert.Equal(t, 42, exec.Variables["answer"])

	acquires, releases := pool.leaseCounts()
	assert.Equal(t, 2, acquires)
	assert.Equal(t, acquires, releases)
}

func TestParallelJoinsAllSteps(t *testing.T) {
	worker := &fakeWorker{
		navigateErr: errors.New("refused"),
		evalResult:  func(expr string) interface{} { return expr },
	}
	service, _, pool := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:   "fan-out",
		Config: models.WorkflowConfig{Parallel: true},
		Steps: []models.Step{
			scriptStep("a", "expr-a", ""),
			navigateStep("broken", "https://down.example"),
			scriptStep("c", "expr-c", ""),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err, "parallel runs never abort")

	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	require.Len(t, exec.Results, 3, "a failed sibling must not cancel the others")

	// Results land in step order regardless of completion order
	assert.Equal(t, "a", exec.Results[0].Name)
	assert.Equal(t, "broken", exec.Results[1].Name)
	assert.Equal(t, "c", exec.Results[2].Name)

	assert.True(t, exec.Results[0].Success)
	assert.False(t, exec.Results[1].Success)
	assert.True(t, exec.Results[2].Success)
	assert.Len(t, exec.Errors, 1)

	acquires, releases := pool.leaseCounts()
	assert.Equal(t, 3, acquires)
	assert.Equal(t, acquires, releases)
}

func TestParallelStepsSeeSeedVariablesOnly(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)

	worker := &fakeWorker{}
	worker.evalResult = func(expr string) interface{} {
		mu.Lock()
		seen = append(seen, expr)
		mu.Unlock()
		return expr
	}
	service, _, _ := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:   "snapshot",
		Config: models.WorkflowConfig{Parallel: true},
		Steps: []models.Step{
			scriptStep("a", "read {{seed}}", "fromA"),
			scriptStep("b", "read {{fromA}}", ""),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, map[string]interface{}{"seed": "v0"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "read v0", "seed variables are visible to parallel steps")
	assert.Contains(t, seen, "read {{fromA}}", "sibling outputs are not visible in parallel mode")
	_, propagated := exec.Variables["fromA"]
	assert.False(t, propagated, "parallel mode does not write output variables back")
}

func TestExecutionHistoryBounded(t *testing.T) {
	worker := &fakeWorker{evalResult: func(string) interface{} { return "ok" }}
	service, _, _ := newTestService(t, worker, Config{HistoryLimit: 2})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:  "hist",
		Steps: []models.Step{scriptStep("s", "1", "")},
	})

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		exec, err := service.Execute(context.Background(), workflow.ID, nil)
		require.NoError(t, err)
		ids = append(ids, exec.ID)
	}

	listed := service.ListExecutions(0)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID, "most recent first")
	assert.Equal(t, ids[1], listed[1].ID)

	_, ok := service.GetExecution(ids[0])
	assert.False(t, ok, "evicted executions are forgotten")

	_, ok = service.GetExecution(ids[2])
	assert.True(t, ok)
}

func TestScrapeStepExtractsSelectors(t *testing.T) {
	worker := &fakeWorker{
		html: `<html><body><h1 id="headline">  Market Wrap  </h1><a class="more" href="/full">More</a></body></html>`,
	}
	service, _, _ := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name: "scrape",
		Steps: []models.Step{{
			Type: models.StepScrape,
			Name: "extract",
			Scrape: &models.ScrapeStep{
				Selectors: map[string]string{
					"headline": "#headline",
					"missing":  "#nope",
				},
			},
		}},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	values, ok := exec.Results[0].Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Market Wrap", values["headline"], "text is trimmed")
	assert.Equal(t, "", values["missing"], "missing selectors yield empty strings")
}

func TestScrapeStepAttributeExtraction(t *testing.T) {
	worker := &fakeWorker{
		html: `<html><body><a class="more" href="/full">More</a></body></html>`,
	}
	service, _, _ := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name: "scrape-attr",
		Steps: []models.Step{{
			Type: models.StepScrape,
			Name: "links",
			Scrape: &models.ScrapeStep{
				Selectors: map[string]string{"link": "a.more"},
				Attribute: "href",
			},
		}},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	values := exec.Results[0].Value.(map[string]interface{})
	assert.Equal(t, "/full", values["link"])
}

func TestInteractStepRunsActionsInOrder(t *testing.T) {
	worker := &fakeWorker{}
	service, _, _ := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name: "interact",
		Steps: []models.Step{{
			Type: models.StepInteract,
			Name: "login",
			Interact: &models.InteractStep{
				Actions: []models.InteractAction{
					{Type: "click", Selector: "#open-{{form}}"},
					{Type: "type", Selector: "#user", Value: "admin"},
				},
			},
		}},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, map[string]interface{}{"form": "login"})
	require.NoError(t, err)

	assert.Equal(t, []string{"#open-login"}, worker.clicks)
	values := exec.Results[0].Value.(map[string]interface{})
	assert.Equal(t, 2, values["actions_completed"])
}

func TestWorkflowTimeoutAppliedToContext(t *testing.T) {
	worker := &fakeWorker{}
	service, _, _ := newTestService(t, worker, Config{})

	worker.evalResult = func(string) interface{} { return nil }

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:   "deadline",
		Config: models.WorkflowConfig{Timeout: time.Second},
		Steps:  []models.Step{scriptStep("s", "1", "")},
	})

	start := time.Now()
	_, err := service.Execute(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second, "fast workflow must not wait out its deadline")
}

func TestWorkflowTimeoutAbortsBlockedStep(t *testing.T) {
	worker := &fakeWorker{blockOnCtx: true}
	service, _, pool := newTestService(t, worker, Config{})

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:   "stuck-page",
		Config: models.WorkflowConfig{Timeout: 25 * time.Millisecond},
		Steps: []models.Step{
			navigateStep("nav", "https://example.com"),
			scriptStep("after", "1", ""),
		},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var stepErr *models.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 0, stepErr.Index)

	assert.Equal(t, models.ExecutionFailed, exec.Status)
	require.Len(t, exec.Results, 1, "steps after the deadline must never start")
	assert.Contains(t, exec.Results[0].Error, context.DeadlineExceeded.Error())

	acquires, releases := pool.leaseCounts()
	assert.Equal(t, 1, acquires)
	assert.Equal(t, 1, releases, "the lease is released after a deadline abort")
}

func TestStepTimeoutAbortsBlockedStep(t *testing.T) {
	worker := &fakeWorker{blockOnCtx: true}
	service, _, pool := newTestService(t, worker, Config{})

	stuck := navigateStep("nav", "https://example.com")
	stuck.Timeout = 25 * time.Millisecond

	workflow := seedWorkflow(t, service, &models.Workflow{
		Name:  "stuck-step",
		Steps: []models.Step{stuck},
	})

	exec, err := service.Execute(context.Background(), workflow.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, models.ExecutionFailed, exec.Status)

	acquires, releases := pool.leaseCounts()
	assert.Equal(t, 1, acquires)
	assert.Equal(t, 1, releases)
}

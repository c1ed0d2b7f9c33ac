package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{
			name:    "unknown type",
			step:    Step{Type: "teleport"},
			wantErr: true,
		},
		{
			name:    "navigate without url",
			step:    Step{Type: StepNavigate, Navigate: &NavigateStep{}},
			wantErr: true,
		},
		{
			name:    "navigate without variant",
			step:    Step{Type: StepNavigate},
			wantErr: true,
		},
		{
			name: "navigate valid",
			step: Step{Type: StepNavigate, Navigate: &NavigateStep{URL: "https://example.com"}},
		},
		{
			name:    "scrape without selectors",
			step:    Step{Type: StepScrape, Scrape: &ScrapeStep{}},
			wantErr: true,
		},
		{
			name: "scrape valid",
			step: Step{Type: StepScrape, Scrape: &ScrapeStep{Selectors: map[string]string{"t": "h1"}}},
		},
		{
			name: "screenshot defaults its variant",
			step: Step{Type: StepScreenshot},
		},
		{
			name: "pdf defaults its variant",
			step: Step{Type: StepPDF},
		},
		{
			name:    "interact without actions",
			step:    Step{Type: StepInteract, Interact: &InteractStep{}},
			wantErr: true,
		},
		{
			name: "interact click without selector",
			step: Step{Type: StepInteract, Interact: &InteractStep{
				Actions: []InteractAction{{Type: "click"}},
			}},
			wantErr: true,
		},
		{
			name: "interact wait without duration",
			step: Step{Type: StepInteract, Interact: &InteractStep{
				Actions: []InteractAction{{Type: "wait"}},
			}},
			wantErr: true,
		},
		{
			name: "interact unknown action",
			step: Step{Type: StepInteract, Interact: &InteractStep{
				Actions: []InteractAction{{Type: "hover", Selector: "#x"}},
			}},
			wantErr: true,
		},
		{
			name: "interact valid",
			step: Step{Type: StepInteract, Interact: &InteractStep{
				Actions: []InteractAction{
					{Type: "click", Selector: "#submit"},
					{Type: "type", Selector: "#user", Value: "admin"},
					{Type: "wait", Duration: time.Second},
				},
			}},
		},
		{
			name:    "wait without duration",
			step:    Step{Type: StepWait, Wait: &WaitStep{}},
			wantErr: true,
		},
		{
			name: "wait valid",
			step: Step{Type: StepWait, Wait: &WaitStep{Duration: 500 * time.Millisecond}},
		},
		{
			name:    "script without source",
			step:    Step{Type: StepScript, Script: &ScriptStep{}},
			wantErr: true,
		},
		{
			name: "script valid",
			step: Step{Type: StepScript, Script: &ScriptStep{Source: "document.title"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkflowValidate(t *testing.T) {
	valid := Workflow{
		Name: "ok",
		Steps: []Step{
			{Type: StepNavigate, Navigate: &NavigateStep{URL: "https://example.com"}},
		},
	}
	assert.NoError(t, valid.Validate())

	noName := valid
	noName.Name = ""
	assert.Error(t, noName.Validate())

	noSteps := Workflow{Name: "empty"}
	assert.Error(t, noSteps.Validate())

	badStep := Workflow{
		Name:  "bad",
		Steps: []Step{{Type: StepNavigate}},
	}
	err := badStep.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "steps[0]")
}

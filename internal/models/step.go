package models

import (
	"errors"
	"fmt"
	"time"
)

// StepType identifies one automation action variant.
type StepType string

// StepType constants. The step executor switches exhaustively over this set;
// adding a variant here requires a matching case in the engine.
const (
	StepNavigate   StepType = "navigate"
	StepScrape     StepType = "scrape"
	StepScreenshot StepType = "screenshot"
	StepPDF        StepType = "pdf"
	StepInteract   StepType = "interact"
	StepWait       StepType = "wait"
	StepScript     StepType = "script"
)

// IsValidStepType checks if a given StepType is one of the known variants
func IsValidStepType(t StepType) bool {
	switch t {
	case StepNavigate, StepScrape, StepScreenshot, StepPDF, StepInteract, StepWait, StepScript:
		return true
	default:
		return false
	}
}

// Step is one typed automation action in a workflow. Exactly one variant
// config must be set, matching Type. OutputVariable, when set, stores the
// step result back into the execution's variable map under that name.
type Step struct {
	Type           StepType      `json:"type" validate:"required"`
	Name           string        `json:"name,omitempty"`
	OutputVariable string        `json:"output_variable,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"` // per-step timeout, engine default when zero

	Navigate   *NavigateStep   `json:"navigate,omitempty"`
	Scrape     *ScrapeStep     `json:"scrape,omitempty"`
	Screenshot *ScreenshotStep `json:"screenshot,omitempty"`
	PDF        *PDFStep        `json:"pdf,omitempty"`
	Interact   *InteractStep   `json:"interact,omitempty"`
	Wait       *WaitStep       `json:"wait,omitempty"`
	Script     *ScriptStep     `json:"script,omitempty"`
}

// NavigateStep loads a URL in the leased browser.
type NavigateStep struct {
	URL string `json:"url" validate:"required"`
}

// ScrapeStep extracts text (or an attribute) for each named CSS selector
// from the current page.
type ScrapeStep struct {
	Selectors map[string]string `json:"selectors" validate:"required,min=1"`
	Attribute string            `json:"attribute,omitempty"` // empty = text content
}

// ScreenshotStep captures the current page as PNG bytes.
type ScreenshotStep struct {
	FullPage bool `json:"full_page,omitempty"`
	Quality  int  `json:"quality,omitempty"`
}

// PDFStep renders the current page to PDF bytes.
type PDFStep struct {
	Landscape       bool `json:"landscape,omitempty"`
	PrintBackground bool `json:"print_background,omitempty"`
}

// InteractAction is one simulated user interaction.
type InteractAction struct {
	Type     string        `json:"type" validate:"required,oneof=click type select wait"`
	Selector string        `json:"selector,omitempty"`
	Value    string        `json:"value,omitempty"`
	Duration time.Duration `json:"duration,omitempty"` // for wait actions
}

// InteractStep runs an ordered list of input simulations.
type InteractStep struct {
	Actions []InteractAction `json:"actions" validate:"required,min=1,dive"`
}

// WaitStep pauses the workflow for a fixed duration.
type WaitStep struct {
	Duration time.Duration `json:"duration" validate:"required"`
}

// ScriptStep evaluates JavaScript in the page and captures its result.
type ScriptStep struct {
	Source string `json:"source" validate:"required"`
}

// Validate checks that the step type is known and that the matching variant
// config (and only behaviourally required fields) is present.
func (s *Step) Validate() error {
	if !IsValidStepType(s.Type) {
		return fmt.Errorf("unknown step type: %q", s.Type)
	}

	switch s.Type {
	case StepNavigate:
		if s.Navigate == nil || s.Navigate.URL == "" {
			return errors.New("navigate step requires a url")
		}
	case StepScrape:
		if s.Scrape == nil || len(s.Scrape.Selectors) == 0 {
			return errors.New("scrape step requires at least one selector")
		}
	case StepScreenshot:
		if s.Screenshot == nil {
			s.Screenshot = &ScreenshotStep{}
		}
	case StepPDF:
		if s.PDF == nil {
			s.PDF = &PDFStep{}
		}
	case StepInteract:
		if s.Interact == nil || len(s.Interact.Actions) == 0 {
			return errors.New("interact step requires at least one action")
		}
		for i, action := range s.Interact.Actions {
			switch action.Type {
			case "click", "type", "select":
				if action.Selector == "" {
					return fmt.Errorf("interact action %d (%s) requires a selector", i, action.Type)
				}
			case "wait":
				if action.Duration <= 0 {
					return fmt.Errorf("interact action %d (wait) requires a positive duration", i)
				}
			default:
				return fmt.Errorf("interact action %d has unknown type: %q", i, action.Type)
			}
		}
	case StepWait:
		if s.Wait == nil || s.Wait.Duration <= 0 {
			return errors.New("wait step requires a positive duration")
		}
	case StepScript:
		if s.Script == nil || s.Script.Source == "" {
			return errors.New("script step requires source")
		}
	}

	return nil
}

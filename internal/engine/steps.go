package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/models"
)

// runStep dispatches one step to its browser operation. The switch is
// exhaustive over the step variants; Workflow.Validate guarantees the
// matching variant config is present.
func (s *Service) runStep(ctx context.Context, worker interfaces.BrowserWorker, step *models.Step, variables map[string]interface{}) (interface{}, error) {
	switch step.Type {
	case models.StepNavigate:
		return s.runNavigate(ctx, worker, step.Navigate, variables)
	case models.StepScrape:
		return s.runScrape(ctx, worker, step.Scrape, variables)
	case models.StepScreenshot:
		return worker.Screenshot(ctx, step.Screenshot.FullPage, step.Screenshot.Quality)
	case models.StepPDF:
		return worker.PDF(ctx, step.PDF.Landscape, step.PDF.PrintBackground)
	case models.StepInteract:
		return s.runInteract(ctx, worker, step.Interact, variables)
	case models.StepWait:
		if err := worker.Sleep(ctx, step.Wait.Duration); err != nil {
			return nil, err
		}
		return step.Wait.Duration.String(), nil
	case models.StepScript:
		source := common.Interpolate(step.Script.Source, variables)
		var out interface{}
		if err := worker.Evaluate(ctx, source, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown step type: %q", step.Type)
	}
}

func (s *Service) runNavigate(ctx context.Context, worker interfaces.BrowserWorker, step *models.NavigateStep, variables map[string]interface{}) (interface{}, error) {
	url := common.Interpolate(step.URL, variables)

	if err := worker.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	title, err := worker.Title(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"url":   url,
		"title": title,
	}, nil
}

// runScrape extracts one value per named selector from the rendered page.
// Missing selectors yield empty strings rather than errors so partial pages
// still produce usable results.
func (s *Service) runScrape(ctx context.Context, worker interfaces.BrowserWorker, step *models.ScrapeStep, variables map[string]interface{}) (interface{}, error) {
	selectors := common.InterpolateMap(step.Selectors, variables)

	html, err := worker.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page markup: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	extracted := make(map[string]interface{}, len(selectors))
	for name, selector := range selectors {
		selection := doc.Find(selector).First()
		if step.Attribute != "" {
			value, _ := selection.Attr(step.Attribute)
			extracted[name] = value
		} else {
			extracted[name] = strings.TrimSpace(selection.Text())
		}
	}

	return extracted, nil
}

func (s *Service) runInteract(ctx context.Context, worker interfaces.BrowserWorker, step *models.InteractStep, variables map[string]interface{}) (interface{}, error) {
	for i, action := range step.Actions {
		selector := common.Interpolate(action.Selector, variables)
		value := common.Interpolate(action.Value, variables)

		var err error
		switch action.Type {
		case "click":
			err = worker.Click(ctx, selector)
		case "type":
			err = worker.Type(ctx, selector, value)
		case "select":
			err = worker.Select(ctx, selector, value)
		case "wait":
			err = worker.Sleep(ctx, action.Duration)
		default:
			err = fmt.Errorf("unknown action type: %q", action.Type)
		}

		if err != nil {
			return nil, fmt.Errorf("action %d (%s) failed: %w", i, action.Type, err)
		}
	}

	return map[string]interface{}{
		"actions_completed": len(step.Actions),
	}, nil
}

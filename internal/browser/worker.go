package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/ternarybob/agito/internal/interfaces"
)

// Worker is one leased browser instance. All operations run against the
// instance's chromedp context while honoring the caller's context for
// cancellation and timeout, so a step timeout aborts the browser call
// promptly instead of merely marking the result late.
type Worker struct {
	inst    *instance
	pool    *Pool
	limiter *rate.Limiter
}

// run executes chromedp actions with the caller's deadline and cancellation
// propagated into the browser context.
func (w *Worker) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(w.inst.browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, deadline)
		defer dlCancel()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Surface the caller's cancellation over the derived context error
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads a URL and waits for the document body, subject to the
// pool-wide navigation rate limit.
func (w *Worker) Navigate(ctx context.Context, url string) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	return w.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Title returns the current page title
func (w *Worker) Title(ctx context.Context) (string, error) {
	var title string
	if err := w.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// HTML returns the rendered document markup
func (w *Worker) HTML(ctx context.Context) (string, error) {
	var html string
	if err := w.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Evaluate runs a JavaScript expression in the page; out may be nil
func (w *Worker) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return w.run(ctx, chromedp.Evaluate(expression, out))
}

// Screenshot captures the current page as image bytes
func (w *Worker) Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 90
	}

	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}

	if err := w.run(ctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

// PDF renders the current page to PDF bytes via Page.printToPDF
func (w *Worker) PDF(ctx context.Context, landscape, printBackground bool) ([]byte, error) {
	var buf []byte
	err := w.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithLandscape(landscape).
			WithPrintBackground(printBackground).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Click dispatches a click on the first node matching the selector
func (w *Worker) Click(ctx context.Context, selector string) error {
	return w.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Type sends keystrokes to the first node matching the selector
func (w *Worker) Type(ctx context.Context, selector, text string) error {
	return w.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Select sets the value of the first node matching the selector
func (w *Worker) Select(ctx context.Context, selector, value string) error {
	return w.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

// Sleep pauses without holding the browser busy
func (w *Worker) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ interfaces.BrowserWorker = (*Worker)(nil)

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/agito/internal/models"
)

// BrowserWorker is an exclusive lease of one pooled browser instance for the
// duration of one step. The step executor uses only this capability surface;
// the concrete browser API behind it is the pool's concern.
type BrowserWorker interface {
	// Navigate loads a URL and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// Title returns the current page title
	Title(ctx context.Context) (string, error)

	// HTML returns the rendered document markup
	HTML(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression; out may be nil to discard the result
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// Screenshot captures the current viewport (or full page) as image bytes;
	// quality <= 0 uses the default
	Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error)

	// PDF renders the current page to PDF bytes
	PDF(ctx context.Context, landscape, printBackground bool) ([]byte, error)

	// Click dispatches a click on the first node matching the selector
	Click(ctx context.Context, selector string) error

	// Type sends keystrokes to the first node matching the selector
	Type(ctx context.Context, selector, text string) error

	// Select sets the value of the first node matching the selector
	Select(ctx context.Context, selector, value string) error

	// Sleep pauses without holding the browser busy
	Sleep(ctx context.Context, d time.Duration) error
}

// BrowserPool issues bounded BrowserWorker leases. Acquire blocks until
// capacity is available or the pool's acquire timeout elapses. The returned
// release function must be called exactly once on every exit path.
type BrowserPool interface {
	Acquire(ctx context.Context) (BrowserWorker, func(), error)
	Stats() models.PoolStats
	Shutdown() error
}

// Package browser manages a bounded pool of headless Chrome instances and
// exposes them as single-step worker leases to the workflow engine.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/models"
)

// PoolConfig holds configuration for the browser pool
type PoolConfig struct {
	MaxInstances      int           `json:"max_instances"`
	Headless          bool          `json:"headless"`
	DisableGPU        bool          `json:"disable_gpu"`
	NoSandbox         bool          `json:"no_sandbox"`
	UserAgent         string        `json:"user_agent"`
	AcquireTimeout    time.Duration `json:"acquire_timeout"`
	NavigationTimeout time.Duration `json:"navigation_timeout"`
	NavigationRate    float64       `json:"navigation_rate"` // navigations/sec across the pool, 0 = unlimited
}

// instance is one live Chrome process with its context chain.
type instance struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

func (i *instance) destroy() {
	if i.browserCancel != nil {
		i.browserCancel()
	}
	if i.allocatorCancel != nil {
		i.allocatorCancel()
	}
}

// Pool issues bounded browser leases. Capacity is enforced with a token
// channel so waiters block cooperatively; instances are created lazily and
// unhealthy ones are discarded on release rather than returned to the free
// list.
type Pool struct {
	config  PoolConfig
	logger  arbor.ILogger
	metrics interfaces.MetricsSink
	limiter *rate.Limiter

	mu       sync.Mutex
	slots    chan struct{} // capacity tokens, buffered to MaxInstances
	free     []*instance
	inUse    int
	shutdown bool

	// newInstance creates one browser; replaced in tests
	newInstance func(ctx context.Context) (*instance, error)
}

// NewPool creates a browser pool. No Chrome process is started until the
// first Acquire (or an explicit Warm).
func NewPool(config PoolConfig, metrics interfaces.MetricsSink, logger arbor.ILogger) *Pool {
	if config.MaxInstances <= 0 {
		config.MaxInstances = 1
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 60 * time.Second
	}
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Agito-Automation/1.0"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.NavigationRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.NavigationRate), 1)
	}

	if config.MaxInstances > 20 {
		logger.Warn().
			Int("max_instances", config.MaxInstances).
			Msg("Large browser pool size detected - this may consume significant memory")
	}

	slots := make(chan struct{}, config.MaxInstances)
	for i := 0; i < config.MaxInstances; i++ {
		slots <- struct{}{}
	}

	p := &Pool{
		config:  config,
		logger:  logger,
		metrics: metrics,
		limiter: limiter,
		slots:   slots,
	}
	p.newInstance = p.launchChrome

	return p
}

// Acquire blocks until a pool slot is free, then leases a browser worker.
// The returned release function must be called exactly once. Instance
// creation failures return the slot as if it was never taken.
func (p *Pool) Acquire(ctx context.Context) (interfaces.BrowserWorker, func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()

	select {
	case <-p.slots:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: no instance free within %s", models.ErrPoolExhausted, p.config.AcquireTimeout)
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.slots <- struct{}{}
		return nil, nil, fmt.Errorf("browser pool is shut down")
	}

	var inst *instance
	if n := len(p.free); n > 0 {
		inst = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if inst == nil {
		created, err := p.newInstance(ctx)
		if err != nil {
			p.slots <- struct{}{}
			p.metrics.RecordResourceError()
			p.logger.Warn().Err(err).Msg("Failed to create browser instance")
			return nil, nil, fmt.Errorf("failed to create browser instance: %w", err)
		}
		inst = created
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()

	p.metrics.RecordAcquire()

	worker := &Worker{
		inst:    inst,
		pool:    p,
		limiter: p.limiter,
	}

	leasedAt := time.Now()
	var once sync.Once
	release := func() {
		once.Do(func() {
			p.release(inst, time.Since(leasedAt))
		})
	}

	p.logger.Debug().
		Int("in_use", p.Stats().InUse).
		Msg("Browser instance leased from pool")

	return worker, release, nil
}

// release returns an instance to the free list, or destroys it when its
// browser context has died.
func (p *Pool) release(inst *instance, usage time.Duration) {
	healthy := inst.browserCtx.Err() == nil

	p.mu.Lock()
	p.inUse--
	keep := healthy && !p.shutdown
	if keep {
		p.free = append(p.free, inst)
	}
	p.mu.Unlock()

	if !keep {
		inst.destroy()
		if !healthy {
			p.logger.Warn().Msg("Discarding unhealthy browser instance")
		}
	}

	p.slots <- struct{}{}
	p.metrics.RecordRelease(usage)

	p.logger.Debug().
		Dur("usage", usage).
		Bool("healthy", healthy).
		Msg("Browser instance released to pool")
}

// Warm eagerly creates up to n idle instances so the first executions do not
// pay browser startup time.
func (p *Pool) Warm(ctx context.Context, n int) error {
	if n > p.config.MaxInstances {
		n = p.config.MaxInstances
	}

	created := 0
	var lastErr error
	for i := 0; i < n; i++ {
		inst, err := p.newInstance(ctx)
		if err != nil {
			lastErr = err
			p.metrics.RecordResourceError()
			p.logger.Warn().Err(err).Int("index", i).Msg("Failed to warm browser instance")
			continue
		}
		p.mu.Lock()
		p.free = append(p.free, inst)
		p.mu.Unlock()
		created++
	}

	p.logger.Info().
		Int("created", created).
		Int("requested", n).
		Msg("Browser pool warmed")

	if created == 0 && lastErr != nil {
		return fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}
	return nil
}

// Stats returns a snapshot of pool utilization.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return models.PoolStats{
		Total:        p.inUse + len(p.free),
		InUse:        p.inUse,
		Available:    p.config.MaxInstances - p.inUse,
		MaxInstances: p.config.MaxInstances,
	}
}

// Shutdown destroys all idle instances and stops new leases. In-flight
// leases are destroyed as they are released.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	idle := p.free
	p.free = nil
	p.mu.Unlock()

	p.logger.Info().
		Int("idle_instances", len(idle)).
		Msg("Shutting down browser pool")

	done := make(chan struct{})
	common.SafeGo(p.logger, "pool-shutdown", func() {
		for _, inst := range idle {
			inst.destroy()
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Msg("Browser pool shutdown timed out")
	}

	return nil
}

// launchChrome starts one Chrome process and verifies it responds.
func (p *Pool) launchChrome(ctx context.Context) (*instance, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		context.Background(),
		allocatorOpts...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup test with timeout so a wedged Chrome fails fast
	testCtx, testCancel := context.WithTimeout(browserCtx, p.config.NavigationTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created and tested successfully")

	return &instance{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}, nil
}

var _ interfaces.BrowserPool = (*Pool)(nil)

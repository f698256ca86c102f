// Package render drives headless-browser captures of a device's source
// page into a tightly packed RGB pixel buffer at its configured
// viewport size. A fixed pool of browser contexts serializes navigation
// and screenshot work per context while allowing several devices to
// render concurrently across contexts.
package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dfeldman/webInk/internal/registry"
)

const (
	defaultQuietWindow = 500 * time.Millisecond
	defaultHardCeiling = 20 * time.Second
)

// Job is one capture request submitted to the pool.
type Job struct {
	Device registry.Device
	Result chan Result
}

// Result is the outcome of a Job: either a tightly packed RGB buffer
// at Device.Viewport dimensions, or an error.
type Result struct {
	RGB []byte
	Err error
}

// Engine is a fixed-size pool of browser contexts. Each worker owns
// exactly one context for its lifetime; navigation and screenshot work
// within that context is always serialized to a single job at a time,
// but distinct workers render concurrently.
type Engine struct {
	jobs chan *Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	quietWindow time.Duration
	hardCeiling time.Duration
	waitTimeout time.Duration
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithQuietWindow overrides the default network-idle window.
func WithQuietWindow(d time.Duration) Option {
	return func(e *Engine) { e.quietWindow = d }
}

// WithHardCeiling overrides the default per-navigation hard timeout.
func WithHardCeiling(d time.Duration) Option {
	return func(e *Engine) { e.hardCeiling = d }
}

// WithSubmitTimeout bounds how long Submit waits for a free worker
// before returning ErrPoolExhausted.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.waitTimeout = d }
}

// NewEngine builds an Engine with the given number of browser-context
// workers. The allocator is shared across workers; each worker creates
// its own tab (chromedp.NewContext) from it.
func NewEngine(workers int, logger *zap.Logger, opts ...Option) *Engine {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)

	e := &Engine{
		jobs:        make(chan *Job, workers*2),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		quietWindow: defaultQuietWindow,
		hardCeiling: defaultHardCeiling,
		waitTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e
}

// Stop cancels all in-flight work, tears down every browser context,
// and waits for workers to exit.
func (e *Engine) Stop() {
	e.cancel()
	close(e.jobs)
	e.wg.Wait()
	e.allocCancel()
}

// Submit enqueues a capture job for device and blocks until a result is
// available, ctx is canceled, or the pool's wait timeout elapses.
func (e *Engine) Submit(ctx context.Context, device registry.Device) (Result, error) {
	job := &Job{Device: device, Result: make(chan Result, 1)}

	waitCtx, cancel := context.WithTimeout(ctx, e.waitTimeout)
	defer cancel()

	select {
	case e.jobs <- job:
	case <-waitCtx.Done():
		return Result{}, ErrPoolExhausted
	case <-e.ctx.Done():
		return Result{}, ErrPoolExhausted
	}

	select {
	case res := <-job.Result:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-e.ctx.Done():
		return Result{}, ErrPoolExhausted
	}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()

	browserCtx, browserCancel := e.newBrowserContext()
	defer browserCancel()

	for {
		select {
		case <-e.ctx.Done():
			return
		case job, ok := <-e.jobs:
			if !ok {
				return
			}
			res := e.processJob(browserCtx, job.Device)
			if res.Err != nil {
				e.logger.Warn("render: tearing down browser context after error",
					zap.Int("worker", id), zap.String("device", job.Device.ID), zap.Error(res.Err))
				browserCancel()
				browserCtx, browserCancel = e.newBrowserContext()
			}
			job.Result <- res
			close(job.Result)
		}
	}
}

func (e *Engine) newBrowserContext() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(e.allocCtx)
}

// processJob runs the capture protocol against an already-allocated
// browser context: set the device viewport, navigate, wait for network
// quiet (or the hard ceiling), capture exactly that viewport, and
// decode it into a tightly packed RGB buffer. A run that exceeds its
// deadline is reported as ErrNavigationTimeout; any other failure is
// ErrRenderFailure.
func (e *Engine) processJob(browserCtx context.Context, device registry.Device) Result {
	runCtx, cancel := context.WithTimeout(browserCtx, e.hardCeiling+5*time.Second)
	defer cancel()

	var shot []byte
	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(device.Viewport.Width), int64(device.Viewport.Height)),
		chromedp.Navigate(device.SourceURL),
		waitNetworkQuiet(e.quietWindow, e.hardCeiling),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Err: fmt.Errorf("render: %w: %v", ErrNavigationTimeout, err)}
		}
		return Result{Err: fmt.Errorf("render: %w: %v", ErrRenderFailure, err)}
	}

	rgb, err := decodePNGToRGB(shot, device.Viewport.Width, device.Viewport.Height)
	if err != nil {
		return Result{Err: fmt.Errorf("render: %w: %v", ErrRenderFailure, err)}
	}
	return Result{RGB: rgb}
}

// Package fetch runs the single-page fetch pipeline: robots check, politeness
// wait, renderer call with retry/backoff, and outcome classification.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
	"github.com/M4YAVI/crawlconsole/internal/metrics"
)

// RobotsGate answers whether a URL may be fetched. The shared implementation
// lives in internal/robots.
type RobotsGate interface {
	IsAllowed(ctx context.Context, url string) bool
}

// PolitenessWaiter blocks until the URL's origin allows another fetch.
type PolitenessWaiter interface {
	Wait(ctx context.Context, origin string) (time.Duration, error)
}

// Config controls the fetch pipeline.
type Config struct {
	RequestTimeout time.Duration
	RespectRobots  bool
}

// Fetcher executes one fetch at a time; concurrency is owned by the job
// coordinator's worker pool.
type Fetcher struct {
	plain   crawl.Renderer
	browser crawl.Renderer
	robots  RobotsGate
	polite  PolitenessWaiter
	retry   *crawl.ExponentialRetryPolicy
	clock   crawl.Clock
	cfg     Config
	logger  *zap.Logger
}

// New builds a Fetcher. browser may be nil when JS rendering is disabled.
func New(
	plain crawl.Renderer,
	browser crawl.Renderer,
	robots RobotsGate,
	polite PolitenessWaiter,
	retry *crawl.ExponentialRetryPolicy,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Fetcher{
		plain:   plain,
		browser: browser,
		robots:  robots,
		polite:  polite,
		retry:   retry,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch resolves one URL into a FetchOutcome. Per-page failures are encoded
// in the outcome; a non-nil error means the renderer collaborator itself is
// unusable and the whole job should fail.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, depth int, useBrowser bool) (crawl.FetchOutcome, error) {
	outcome := crawl.FetchOutcome{
		URL:       rawURL,
		Depth:     depth,
		FetchedAt: f.clock.Now(),
	}

	renderer := f.plain
	if useBrowser {
		renderer = f.browser
	}
	if renderer == nil {
		return outcome, fmt.Errorf("%w: browser rendering requested but not enabled", crawl.ErrRendererUnavailable)
	}

	if f.cfg.RespectRobots && !f.robots.IsAllowed(ctx, rawURL) {
		outcome.Status = crawl.OutcomeBlockedByRobots
		outcome.Error = "disallowed by robots.txt"
		metrics.ObservePage(rawURL, string(outcome.Status), 0)
		return outcome, nil
	}

	origin, err := crawl.Origin(rawURL)
	if err != nil {
		outcome.Status = crawl.OutcomeRenderError
		outcome.Error = err.Error()
		return outcome, nil
	}
	waited, err := f.polite.Wait(ctx, origin)
	if err != nil {
		outcome.Status = crawl.OutcomeTimeout
		outcome.Error = err.Error()
		return outcome, nil
	}
	if waited > 0 {
		metrics.ObservePolitenessWait(rawURL, waited)
	}

	start := time.Now()
	page, attempts, fetchErr := f.fetchWithRetry(ctx, renderer, rawURL)
	outcome.Retries = attempts
	outcome.Elapsed = time.Since(start)

	switch {
	case fetchErr != nil:
		outcome.Status = classifyFetchError(fetchErr)
		outcome.Error = fetchErr.Error()
	case page.StatusCode >= 400:
		outcome.Status = crawl.OutcomeHTTPError
		outcome.StatusCode = page.StatusCode
		outcome.Error = fmt.Sprintf("HTTP %d", page.StatusCode)
	default:
		outcome.Status = crawl.OutcomeOK
		outcome.StatusCode = page.StatusCode
		outcome.HTML = page.HTML
	}

	metrics.ObservePage(rawURL, string(outcome.Status), outcome.Elapsed)
	return outcome, nil
}

// fetchWithRetry retries timeouts and transient network errors with jittered
// backoff. HTTP error statuses come back as pages and are never retried.
func (f *Fetcher) fetchWithRetry(ctx context.Context, renderer crawl.Renderer, rawURL string) (crawl.Page, int, error) {
	var lastErr error
	attempt := 0
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
		page, err := renderer.Render(attemptCtx, rawURL, crawl.RenderOptions{Timeout: f.cfg.RequestTimeout})
		cancel()
		if err == nil {
			return page, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempt) {
			return crawl.Page{}, attempt, lastErr
		}
		backoff := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := sleepContext(ctx, backoff); err != nil {
			return crawl.Page{}, attempt, lastErr
		}
		attempt++
	}
}

func classifyFetchError(err error) crawl.OutcomeStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return crawl.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawl.OutcomeTimeout
	}
	return crawl.OutcomeRenderError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

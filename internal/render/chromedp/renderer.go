// Package chromedprender implements the JS-executing Renderer using headless
// Chrome via chromedp.
package chromedprender

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// ErrDisabled indicates browser rendering has been disabled via configuration.
var ErrDisabled = errors.New("browser renderer disabled")

// Config controls the browser renderer.
type Config struct {
	MaxParallel int
	UserAgent   string
	NavTimeout  time.Duration
	DomainQPS   float64
}

// Renderer renders pages with JavaScript enabled. A semaphore bounds
// concurrent tabs; a per-domain limiter bounds how hard one site is hit.
type Renderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	navTimeout      time.Duration
	domainQPS       float64
	domainLimiters  sync.Map
	userAgent       string
}

// New creates a Renderer and warms up the shared browser process.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrDisabled
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Renderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxParallel),
		navTimeout:      cfg.NavTimeout,
		domainQPS:       cfg.DomainQPS,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *Renderer) Close() error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render executes the page with JavaScript and returns the DOM snapshot.
func (r *Renderer) Render(ctx context.Context, rawURL string, opts crawl.RenderOptions) (crawl.Page, error) {
	if r == nil {
		return crawl.Page{}, ErrDisabled
	}

	release, err := r.acquireSlot(ctx)
	if err != nil {
		return crawl.Page{}, err
	}
	defer release()

	if waitErr := r.waitDomainBudget(ctx, rawURL); waitErr != nil {
		return crawl.Page{}, fmt.Errorf("render rate limit: %w", waitErr)
	}

	timeout := r.navTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	r.recordResponse(tabCtx, meta)

	start := time.Now()
	html, err := r.runChromedp(taskCtx, rawURL)
	if err != nil {
		return crawl.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	return crawl.Page{
		URL:         rawURL,
		FinalURL:    meta.finalURL(rawURL),
		StatusCode:  meta.status(),
		HTML:        html,
		UsedBrowser: true,
		Elapsed:     time.Since(start),
	}, nil
}

func (r *Renderer) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func (m *responseMeta) status() int {
	if m.statusCode == 0 {
		return 200
	}
	return m.statusCode
}

func (r *Renderer) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
		})
	})
}

func (r *Renderer) runChromedp(ctx context.Context, rawURL string) (string, error) {
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (r *Renderer) waitDomainBudget(ctx context.Context, rawURL string) error {
	if r.domainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := r.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(r.domainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

// Package collyrender implements the non-JS Renderer using the Colly
// collector over a pooled HTTP transport.
package collyrender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxConnsToHost int
}

// Renderer fetches pages without JavaScript execution.
type Renderer struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Renderer. The base collector is cloned per fetch so callbacks
// never leak between requests.
func New(cfg Config, logger *zap.Logger) *Renderer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxConnsToHost <= 0 {
		cfg.MaxConnsToHost = 8
	}
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       cfg.MaxConnsToHost,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &Renderer{
		cfg:           cfg,
		baseCollector: base,
		logger:        logger,
	}
}

type renderResult struct {
	page crawl.Page
	err  error
}

// Render retrieves a page via a cloned collector. HTTP error statuses are
// returned as a Page with the status code set, not as an error; only
// transport-level failures produce errors.
func (r *Renderer) Render(ctx context.Context, rawURL string, opts crawl.RenderOptions) (crawl.Page, error) {
	collector := r.baseCollector.Clone()
	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}

	resultCh := make(chan renderResult, 1)
	var once sync.Once
	send := func(res renderResult) {
		once.Do(func() { resultCh <- res })
	}
	start := time.Now()

	collector.OnResponse(func(resp *colly.Response) {
		send(renderResult{page: crawl.Page{
			URL:        rawURL,
			FinalURL:   resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			HTML:       string(resp.Body),
			Elapsed:    time.Since(start),
		}})
	})

	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode > 0 {
			send(renderResult{page: crawl.Page{
				URL:        rawURL,
				FinalURL:   resp.Request.URL.String(),
				StatusCode: resp.StatusCode,
				HTML:       string(resp.Body),
				Elapsed:    time.Since(start),
			}})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(renderResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return crawl.Page{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return crawl.Page{}, err
		}
		if res.err != nil {
			return crawl.Page{}, res.err
		}
		return res.page, nil
	default:
		return crawl.Page{}, errors.New("colly fetch produced no result")
	}
}

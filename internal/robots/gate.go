// Package robots enforces robots.txt directives with a shared per-origin
// cache. The cache is read-mostly state shared across all jobs.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxRobotsBody = 1 << 20

// Gate caches parsed robots.txt per origin. Concurrent first access to the
// same uncached origin collapses into a single fetch. On robots.txt fetch
// failure the gate fails open: the crawl must not stall on an unreachable
// robots endpoint, so unknown policy means allowed.
type Gate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Config controls Gate behavior.
type Config struct {
	UserAgent string
	// TTL bounds how long a cached robots.txt is trusted. Zero means
	// fetch-once-per-origin-per-process.
	TTL     time.Duration
	Timeout time.Duration
}

// NewGate builds a Gate.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gate{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		ttl:       cfg.TTL,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
	}
}

// IsAllowed reports whether the user agent may fetch the URL according to the
// origin's robots.txt. Unparseable URLs are not allowed; unreachable robots
// endpoints are (fail-open, logged).
func (g *Gate) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host),
			zap.Error(err),
		)
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	originKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	g.mu.RLock()
	entry, ok := g.cache[originKey]
	g.mu.RUnlock()
	if ok && !g.expired(entry) {
		return entry.data, nil
	}

	v, err, _ := g.group.Do(originKey, func() (any, error) {
		g.mu.RLock()
		entry, ok := g.cache[originKey]
		g.mu.RUnlock()
		if ok && !g.expired(entry) {
			return entry.data, nil
		}
		data, err := g.fetch(ctx, parsed)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.cache[originKey] = cacheEntry{data: data, fetchedAt: time.Now()}
		g.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, ok := v.(*robotstxt.RobotsData)
	if !ok {
		return nil, fmt.Errorf("robots cache type mismatch: %T", v)
	}
	return data, nil
}

func (g *Gate) expired(entry cacheEntry) bool {
	return g.ttl > 0 && time.Since(entry.fetchedAt) > g.ttl
}

func (g *Gate) fetch(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := url.URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   "/robots.txt",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

// AllowAll is a Gate replacement used when robots enforcement is disabled.
type AllowAll struct{}

// IsAllowed always returns true.
func (AllowAll) IsAllowed(context.Context, string) bool { return true }

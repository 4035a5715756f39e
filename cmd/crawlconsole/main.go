// Command crawlconsole runs the crawl orchestration HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/M4YAVI/crawlconsole/internal/api"
	"github.com/M4YAVI/crawlconsole/internal/clock"
	"github.com/M4YAVI/crawlconsole/internal/config"
	"github.com/M4YAVI/crawlconsole/internal/crawl"
	"github.com/M4YAVI/crawlconsole/internal/extract"
	"github.com/M4YAVI/crawlconsole/internal/fetch"
	"github.com/M4YAVI/crawlconsole/internal/id"
	"github.com/M4YAVI/crawlconsole/internal/job"
	"github.com/M4YAVI/crawlconsole/internal/logging"
	"github.com/M4YAVI/crawlconsole/internal/politeness"
	publisher "github.com/M4YAVI/crawlconsole/internal/publisher/memory"
	pubsubpublisher "github.com/M4YAVI/crawlconsole/internal/publisher/pubsub"
	chromedprender "github.com/M4YAVI/crawlconsole/internal/render/chromedp"
	collyrender "github.com/M4YAVI/crawlconsole/internal/render/colly"
	"github.com/M4YAVI/crawlconsole/internal/robots"
	memorystore "github.com/M4YAVI/crawlconsole/internal/store/memory"
	postgresstore "github.com/M4YAVI/crawlconsole/internal/store/postgres"
	sqlitestore "github.com/M4YAVI/crawlconsole/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crawlconsole: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pub, closePub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePub()

	gate := robots.NewGate(robots.Config{
		UserAgent: cfg.Crawler.UserAgent,
		TTL:       time.Duration(cfg.Robots.CacheTTLMinutes) * time.Minute,
		Timeout:   cfg.Crawler.RequestTimeout(),
	}, logger)

	limiter := politeness.New(cfg.Crawler.Delay())

	plain := collyrender.New(collyrender.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RequestTimeout: cfg.Crawler.RequestTimeout(),
	}, logger)

	var browser crawl.Renderer
	if cfg.Render.HeadlessEnabled {
		b, err := chromedprender.New(chromedprender.Config{
			MaxParallel: cfg.Render.MaxParallel,
			UserAgent:   cfg.Crawler.UserAgent,
			NavTimeout:  time.Duration(cfg.Render.NavTimeoutSeconds) * time.Second,
			DomainQPS:   cfg.Render.DomainQPS,
		}, logger)
		if err != nil {
			return fmt.Errorf("start headless renderer: %w", err)
		}
		defer b.Close()
		browser = b
	}

	retry := crawl.NewExponentialRetryPolicy(cfg.Crawler.MaxRetries,
		cfg.Crawler.BackoffInitial(), cfg.Crawler.BackoffMax())
	clk := clock.NewSystem()

	fetcher := fetch.New(plain, browser, gate, limiter, retry, clk, fetch.Config{
		RequestTimeout: cfg.Crawler.RequestTimeout(),
		RespectRobots:  cfg.Crawler.RespectRobots,
	}, logger)

	extractor := extract.New(extract.Config{
		AgentAPIKey:  cfg.Agent.APIKey,
		AgentBaseURL: cfg.Agent.BaseURL,
		DefaultModel: cfg.Agent.DefaultModel,
	}, logger)

	server := api.NewServer(cfg, logger, job.NewRegistry(), fetcher,
		extractor, store, pub, clk, id.NewUUIDGenerator())

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (crawl.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return memorystore.NewStore(), func() {}, nil
	case "sqlite":
		s, err := sqlitestore.NewStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := postgresstore.NewStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildPublisher(ctx context.Context, cfg *config.Config) (crawl.Publisher, func(), error) {
	if !cfg.Publisher.Enabled {
		return publisher.NewPublisher(), func() {}, nil
	}
	p, err := pubsubpublisher.NewPublisher(ctx, cfg.Publisher.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { p.Close() }, nil
}

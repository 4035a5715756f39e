// Package api exposes the crawl service over HTTP: one synchronous endpoint
// per mode, plus job status, results, and cancellation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/M4YAVI/crawlconsole/internal/config"
	"github.com/M4YAVI/crawlconsole/internal/crawl"
	"github.com/M4YAVI/crawlconsole/internal/job"
	"github.com/M4YAVI/crawlconsole/internal/metrics"
)

// Server wires the HTTP surface to the job machinery.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *job.Registry
	fetcher   job.PageFetcher
	extractor crawl.Extractor
	store     crawl.Store
	publisher crawl.Publisher
	clock     crawl.Clock
	ids       crawl.IDGenerator

	router chi.Router
	srv    *http.Server
}

// NewServer builds the router and handlers. Call ListenAndServe to start.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	registry *job.Registry,
	fetcher job.PageFetcher,
	extractor crawl.Extractor,
	store crawl.Store,
	publisher crawl.Publisher,
	clock crawl.Clock,
	ids crawl.IDGenerator,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
	}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, used directly by tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving HTTP until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(recoverer(s.logger))
	// Generous bound: mode handlers block for the job budget.
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.handleScrape)
		r.Post("/search", s.handleSearch)
		r.Post("/agent", s.handleAgent)
		r.Post("/map", s.handleMap)
		r.Post("/crawl", s.handleCrawl)

		r.Get("/jobs", s.handleJobsList)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Get("/jobs/{jobID}/results", s.handleJobResults)
		r.Post("/jobs/{jobID}/cancel", s.handleJobCancel)

		r.Get("/health", s.handleHealth)
		r.Get("/modes", s.handleModes)
		r.Get("/models", s.handleModels)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// launchJob registers and starts a coordinator, then waits for the terminal
// result. The job runs on a background context so a client disconnect leaves
// it running and queryable.
func (s *Server) launchJob(ctx context.Context, req crawl.JobRequest) (crawl.JobResult, error) {
	if err := req.Validate(); err != nil {
		return crawl.JobResult{}, err
	}
	jobID, err := s.ids.NewID()
	if err != nil {
		return crawl.JobResult{}, fmt.Errorf("allocate job id: %w", err)
	}

	coordinator := job.NewCoordinator(jobID, req,
		s.fetcher, s.extractor, s.store, s.publisher,
		s.cfg.Publisher.Topic, s.clock, s.logger)
	s.registry.Add(coordinator)
	coordinator.Start(context.Background())

	return coordinator.AwaitCompletion(ctx)
}

type jobEnvelope struct {
	Success bool            `json:"success"`
	Job     crawl.JobResult `json:"job"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJob(w http.ResponseWriter, result crawl.JobResult) {
	writeJSON(w, http.StatusOK, jobEnvelope{Success: true, Job: result})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorEnvelope{Success: false, Error: err.Error()})
}

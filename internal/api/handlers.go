package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

type scrapeRequest struct {
	URL           string           `json:"url"`
	Format        string           `json:"format"`
	IncludeLinks  bool             `json:"include_links"`
	IncludeImages bool             `json:"include_images"`
	UseBrowser    bool             `json:"use_browser"`
	Selectors     []crawl.Selector `json:"selectors"`
}

type searchRequest struct {
	URL        string `json:"url"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	UseBrowser bool   `json:"use_browser"`
}

type agentRequest struct {
	URL         string `json:"url"`
	Instruction string `json:"instruction"`
	Model       string `json:"model"`
	UseBrowser  bool   `json:"use_browser"`
}

type mapRequest struct {
	URL        string `json:"url"`
	MaxDepth   *int   `json:"max_depth"`
	MaxPages   *int   `json:"max_pages"`
	BatchSize  int    `json:"batch_size"`
	SameDomain *bool  `json:"same_domain"`
	UseBrowser bool   `json:"use_browser"`
}

type crawlRequest struct {
	URLs          []string `json:"urls"`
	Format        string   `json:"format"`
	BatchSize     int      `json:"batch_size"`
	IncludeLinks  bool     `json:"include_links"`
	IncludeImages bool     `json:"include_images"`
	UseBrowser    bool     `json:"use_browser"`
}

func decode(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: %v", crawl.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var in scrapeRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req := s.baseRequest(crawl.ModeScrape, []string{in.URL}, in.Format)
	req.MaxPages = 1
	req.IncludeLinks = in.IncludeLinks
	req.IncludeImages = in.IncludeImages
	req.UseBrowser = in.UseBrowser
	req.Selectors = in.Selectors
	s.runJob(w, r, req)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var in searchRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req := s.baseRequest(crawl.ModeSearch, []string{in.URL}, "")
	req.Format = crawl.FormatText
	req.MaxPages = 1
	req.Query = in.Query
	req.TopK = in.TopK
	if req.TopK == 0 {
		req.TopK = 5
	}
	req.UseBrowser = in.UseBrowser
	s.runJob(w, r, req)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var in agentRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req := s.baseRequest(crawl.ModeAgent, []string{in.URL}, string(crawl.FormatMarkdown))
	req.MaxPages = 1
	req.Instruction = in.Instruction
	req.Model = in.Model
	req.UseBrowser = in.UseBrowser
	s.runJob(w, r, req)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var in mapRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req := s.baseRequest(crawl.ModeMap, []string{in.URL}, "")
	req.Format = crawl.FormatText
	req.MaxDepth = s.cfg.Crawler.MaxDepthDefault
	if in.MaxDepth != nil {
		req.MaxDepth = *in.MaxDepth
	}
	if in.MaxPages != nil {
		req.MaxPages = *in.MaxPages
	}
	req.SameDomain = true
	if in.SameDomain != nil {
		req.SameDomain = *in.SameDomain
	}
	req.BatchSize = s.clampBatch(in.BatchSize)
	req.UseBrowser = in.UseBrowser
	s.runJob(w, r, req)
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var in crawlRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req := s.baseRequest(crawl.ModeCrawl, in.URLs, in.Format)
	req.MaxPages = len(in.URLs)
	req.BatchSize = s.clampBatch(in.BatchSize)
	req.IncludeLinks = in.IncludeLinks
	req.IncludeImages = in.IncludeImages
	req.UseBrowser = in.UseBrowser
	s.runJob(w, r, req)
}

// baseRequest fills the mode-independent defaults from configuration.
func (s *Server) baseRequest(mode crawl.Mode, urls []string, format string) crawl.JobRequest {
	f := crawl.Format(format)
	if format == "" {
		f = crawl.FormatMarkdown
	}
	return crawl.JobRequest{
		Mode:          mode,
		URLs:          urls,
		Format:        f,
		MaxPages:      s.cfg.Crawler.MaxPagesDefault,
		BatchSize:     s.cfg.Crawler.Concurrency,
		BudgetSeconds: s.cfg.Crawler.JobBudgetSeconds,
	}
}

func (s *Server) clampBatch(requested int) int {
	if requested < 1 {
		return s.cfg.Crawler.Concurrency
	}
	if requested > s.cfg.Crawler.MaxConcurrency {
		return s.cfg.Crawler.MaxConcurrency
	}
	return requested
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request, req crawl.JobRequest) {
	result, err := s.launchJob(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, crawl.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	writeModeResponse(w, result)
}

type jobSummary struct {
	JobID       string            `json:"job_id"`
	Mode        crawl.Mode        `json:"mode"`
	Status      crawl.JobStatus   `json:"status"`
	Counters    crawl.JobCounters `json:"counters"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func (s *Server) handleJobsList(w http.ResponseWriter, _ *http.Request) {
	statuses := s.registry.Statuses()
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].CreatedAt.Before(statuses[j].CreatedAt)
	})
	summaries := make([]jobSummary, 0, len(statuses))
	for _, st := range statuses {
		summaries = append(summaries, jobSummary{
			JobID:       st.JobID,
			Mode:        st.Request.Mode,
			Status:      st.Status,
			Counters:    st.Counters,
			CreatedAt:   st.CreatedAt,
			CompletedAt: st.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobs": summaries})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if coordinator, ok := s.registry.Get(jobID); ok {
		writeJob(w, coordinator.Status())
		return
	}
	result, err := s.store.Load(r.Context(), jobID)
	if errors.Is(err, crawl.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJob(w, result)
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	result, err := s.store.Load(r.Context(), jobID)
	if err == nil {
		writeJob(w, result)
		return
	}
	if !errors.Is(err, crawl.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Not yet persisted; fall back to the live snapshot.
	if coordinator, ok := s.registry.Get(jobID); ok {
		writeJob(w, coordinator.Status())
		return
	}
	s.writeError(w, http.StatusNotFound, err)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	coordinator, ok := s.registry.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound,
			fmt.Errorf("cancel job %s: %w", jobID, crawl.ErrNotFound))
		return
	}
	coordinator.Cancel()
	writeJob(w, coordinator.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.clock.Now(),
		"jobs":   s.registry.Len(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.cfg.Agent.Models,
		"default": s.cfg.Agent.DefaultModel,
	})
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": []crawl.Mode{
			crawl.ModeScrape, crawl.ModeSearch, crawl.ModeAgent,
			crawl.ModeMap, crawl.ModeCrawl,
		},
		"formats": []crawl.Format{
			crawl.FormatMarkdown, crawl.FormatText, crawl.FormatHTML,
		},
	})
}

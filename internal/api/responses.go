package api

import (
	"net/http"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// Each mode returns its own response shape; the full JobResult stays
// available at /api/jobs/{jobID}.

type scrapeResponse struct {
	Success   bool                `json:"success"`
	JobID     string              `json:"job_id"`
	Mode      crawl.Mode          `json:"mode"`
	Status    crawl.JobStatus     `json:"status"`
	URL       string              `json:"url"`
	Format    crawl.Format        `json:"format"`
	Content   string              `json:"content,omitempty"`
	Metadata  *crawl.Metadata     `json:"metadata,omitempty"`
	Links     []crawl.Link        `json:"links,omitempty"`
	Images    []crawl.Image       `json:"images,omitempty"`
	Extracted map[string][]string `json:"extracted,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type crawlResponse struct {
	Success    bool               `json:"success"`
	JobID      string             `json:"job_id"`
	Mode       crawl.Mode         `json:"mode"`
	Status     crawl.JobStatus    `json:"status"`
	TotalURLs  int                `json:"total_urls"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Results    []crawl.PageResult `json:"results"`
}

type siteMapEntry struct {
	URL        string `json:"url"`
	Depth      int    `json:"depth"`
	Title      string `json:"title,omitempty"`
	LinksCount int    `json:"links_count"`
	Error      string `json:"error,omitempty"`
}

type mapResponse struct {
	Success         bool            `json:"success"`
	JobID           string          `json:"job_id"`
	Mode            crawl.Mode      `json:"mode"`
	Status          crawl.JobStatus `json:"status"`
	RootURL         string          `json:"root_url"`
	PagesDiscovered int             `json:"pages_discovered"`
	SiteMap         []siteMapEntry  `json:"site_map"`
}

type searchResponse struct {
	Success         bool                `json:"success"`
	JobID           string              `json:"job_id"`
	Mode            crawl.Mode          `json:"mode"`
	Status          crawl.JobStatus     `json:"status"`
	URL             string              `json:"url"`
	Query           string              `json:"query"`
	Results         []crawl.ScoredChunk `json:"results"`
	TotalParagraphs int                 `json:"total_paragraphs"`
	Error           string              `json:"error,omitempty"`
}

type agentResponse struct {
	Success     bool            `json:"success"`
	JobID       string          `json:"job_id"`
	Mode        crawl.Mode      `json:"mode"`
	Status      crawl.JobStatus `json:"status"`
	URL         string          `json:"url"`
	Instruction string          `json:"instruction"`
	Model       string          `json:"model"`
	Result      string          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func writeModeResponse(w http.ResponseWriter, result crawl.JobResult) {
	switch result.Request.Mode {
	case crawl.ModeScrape:
		writeJSON(w, http.StatusOK, buildScrapeResponse(result))
	case crawl.ModeCrawl:
		writeJSON(w, http.StatusOK, buildCrawlResponse(result))
	case crawl.ModeMap:
		writeJSON(w, http.StatusOK, buildMapResponse(result))
	case crawl.ModeSearch:
		writeJSON(w, http.StatusOK, buildSearchResponse(result))
	case crawl.ModeAgent:
		writeJSON(w, http.StatusOK, buildAgentResponse(result))
	default:
		writeJob(w, result)
	}
}

func firstPage(result crawl.JobResult) (crawl.PageResult, bool) {
	if len(result.Pages) == 0 {
		return crawl.PageResult{}, false
	}
	return result.Pages[0], true
}

func buildScrapeResponse(result crawl.JobResult) scrapeResponse {
	resp := scrapeResponse{
		JobID:  result.JobID,
		Mode:   result.Request.Mode,
		Status: result.Status,
		Format: result.Request.Format,
		Error:  result.Error,
	}
	if len(result.Request.URLs) > 0 {
		resp.URL = result.Request.URLs[0]
	}
	page, ok := firstPage(result)
	if !ok {
		return resp
	}
	resp.Content = page.Content
	resp.Metadata = page.Metadata
	resp.Links = page.Links
	resp.Images = page.Images
	resp.Extracted = page.Extracted
	if resp.Error == "" {
		resp.Error = page.Error
	}
	resp.Success = result.Status == crawl.JobStatusCompleted && page.Error == "" &&
		page.Status == crawl.OutcomeOK
	return resp
}

func buildCrawlResponse(result crawl.JobResult) crawlResponse {
	return crawlResponse{
		Success:    result.Status == crawl.JobStatusCompleted,
		JobID:      result.JobID,
		Mode:       result.Request.Mode,
		Status:     result.Status,
		TotalURLs:  result.Counters.PagesAttempted,
		Successful: result.Counters.PagesSucceeded,
		Failed:     result.Counters.PagesFailed + result.Counters.SkippedByRobots,
		Results:    result.Pages,
	}
}

func buildMapResponse(result crawl.JobResult) mapResponse {
	entries := make([]siteMapEntry, 0, len(result.Pages))
	for _, page := range result.Pages {
		entry := siteMapEntry{
			URL:        page.URL,
			Depth:      page.Depth,
			LinksCount: page.LinksCount,
			Error:      page.Error,
		}
		if page.Metadata != nil {
			entry.Title = page.Metadata.Title
		}
		entries = append(entries, entry)
	}

	resp := mapResponse{
		Success:         result.Status == crawl.JobStatusCompleted,
		JobID:           result.JobID,
		Mode:            result.Request.Mode,
		Status:          result.Status,
		PagesDiscovered: len(entries),
		SiteMap:         entries,
	}
	if len(result.Request.URLs) > 0 {
		resp.RootURL = result.Request.URLs[0]
	}
	return resp
}

func buildSearchResponse(result crawl.JobResult) searchResponse {
	resp := searchResponse{
		Success:         result.Status == crawl.JobStatusCompleted,
		JobID:           result.JobID,
		Mode:            result.Request.Mode,
		Status:          result.Status,
		Query:           result.Request.Query,
		Results:         result.Ranked,
		TotalParagraphs: result.TotalParagraphs,
		Error:           result.Error,
	}
	if len(result.Request.URLs) > 0 {
		resp.URL = result.Request.URLs[0]
	}
	if page, ok := firstPage(result); ok && resp.Error == "" {
		resp.Error = page.Error
	}
	if resp.Error != "" {
		resp.Success = false
	}
	return resp
}

func buildAgentResponse(result crawl.JobResult) agentResponse {
	resp := agentResponse{
		JobID:       result.JobID,
		Mode:        result.Request.Mode,
		Status:      result.Status,
		Instruction: result.Request.Instruction,
		Model:       result.Request.Model,
		Result:      result.AgentOutput,
		Error:       result.Error,
	}
	if len(result.Request.URLs) > 0 {
		resp.URL = result.Request.URLs[0]
	}
	if page, ok := firstPage(result); ok && resp.Error == "" {
		resp.Error = page.Error
	}
	resp.Success = result.Status == crawl.JobStatusCompleted && resp.Error == "" &&
		result.AgentOutput != ""
	return resp
}

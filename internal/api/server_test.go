package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/M4YAVI/crawlconsole/internal/clock"
	"github.com/M4YAVI/crawlconsole/internal/config"
	"github.com/M4YAVI/crawlconsole/internal/crawl"
	"github.com/M4YAVI/crawlconsole/internal/extract"
	"github.com/M4YAVI/crawlconsole/internal/id"
	"github.com/M4YAVI/crawlconsole/internal/job"
	memorypub "github.com/M4YAVI/crawlconsole/internal/publisher/memory"
	memorystore "github.com/M4YAVI/crawlconsole/internal/store/memory"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, rawURL string, depth int, _ bool) (crawl.FetchOutcome, error) {
	return crawl.FetchOutcome{
		URL:        rawURL,
		Depth:      depth,
		Status:     crawl.OutcomeOK,
		StatusCode: 200,
		HTML: `<html><head><title>Stub</title></head><body>
			<p>Stub page body with pricing details for the plan.</p>
			<a href="/next">Next</a></body></html>`,
	}, nil
}

func newTestServer(t *testing.T) (*Server, *memorystore.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Crawler.Concurrency = 2
	cfg.Crawler.MaxConcurrency = 10
	cfg.Crawler.MaxDepthDefault = 2
	cfg.Crawler.MaxPagesDefault = 10
	cfg.Crawler.JobBudgetSeconds = 30
	cfg.Agent.DefaultModel = "google/gemini-2.0-flash-001"
	cfg.Agent.Models = map[string]string{
		"google/gemini-2.0-flash-001": "Gemini 2.0 Flash",
	}

	store := memorystore.NewStore()
	logger := zaptest.NewLogger(t)
	srv := NewServer(cfg, logger, job.NewRegistry(), stubFetcher{},
		extract.New(extract.Config{}, logger), store,
		memorypub.NewPublisher(), clock.NewSystem(), id.NewUUIDGenerator())
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) crawl.JobResult {
	t.Helper()
	var envelope jobEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Job
}

func TestScrapeEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/scrape", map[string]any{
		"url": "https://example.com", "include_links": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, crawl.JobStatusCompleted, resp.Status)
	require.Equal(t, "https://example.com", resp.URL)
	require.NotEmpty(t, resp.Content)
	require.NotEmpty(t, resp.Links)
	require.Equal(t, "Stub", resp.Metadata.Title)
}

func TestScrapeRejectsBadJSON(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	require.NotEmpty(t, envelope.Error)
}

func TestScrapeRejectsSchemelessURL(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/scrape", map[string]any{
		"url": "example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	require.Contains(t, envelope.Error, "example.com")
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{
		"url": "https://example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{
		"url": "https://example.com", "query": "pricing", "top_k": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "pricing", resp.Query)
	require.NotEmpty(t, resp.Results)
	require.Positive(t, resp.TotalParagraphs)
}

func TestCrawlEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/crawl", map[string]any{
		"urls": []string{"https://a.example.com", "https://b.example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp crawlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.TotalURLs)
	require.Equal(t, 2, resp.Successful)
	require.Equal(t, 0, resp.Failed)
	require.Len(t, resp.Results, 2)
}

func TestMapEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	depth := 1
	rec := doJSON(t, srv, http.MethodPost, "/api/map", map[string]any{
		"url": "https://example.com", "max_depth": depth,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp mapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "https://example.com", resp.RootURL)
	// the stub page links to /next, reached at depth 1
	require.Equal(t, 2, resp.PagesDiscovered)
	require.Len(t, resp.SiteMap, 2)
	require.Equal(t, 0, resp.SiteMap[0].Depth)
	require.Equal(t, 1, resp.SiteMap[1].Depth)
	require.Equal(t, "Stub", resp.SiteMap[0].Title)
}

func TestAgentEndpointWithoutKey(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/agent", map[string]any{
		"url": "https://example.com", "instruction": "list the plan names",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, crawl.JobStatusCompleted, resp.Status)
	require.Equal(t, "list the plan names", resp.Instruction)
	require.NotEmpty(t, resp.Error)
}

func TestJobStatusAfterCompletion(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/scrape", map[string]any{
		"url": "https://example.com",
	})
	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	statusRec := doJSON(t, srv, http.MethodGet, "/api/jobs/"+resp.JobID, nil)
	require.Equal(t, http.StatusOK, statusRec.Code)
	require.Equal(t, resp.JobID, decodeJob(t, statusRec).JobID)

	resultsRec := doJSON(t, srv, http.MethodGet, "/api/jobs/"+resp.JobID+"/results", nil)
	require.Equal(t, http.StatusOK, resultsRec.Code)
	require.Len(t, decodeJob(t, resultsRec).Pages, 1)
}

func TestJobsList(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/scrape", map[string]any{"url": "https://example.com"})

	rec := doJSON(t, srv, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Jobs    []struct {
			JobID  string `json:"job_id"`
			Mode   string `json:"mode"`
			Status string `json:"status"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Len(t, body.Jobs, 1)
	require.Equal(t, "scrape", body.Jobs[0].Mode)
	require.Equal(t, "completed", body.Jobs[0].Status)
}

func TestJobStatusUnknown(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/jobs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobCancelUnknown(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/jobs/nope/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndModes(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/health", nil).Code)

	rec := doJSON(t, srv, http.MethodGet, "/api/modes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scrape")
	require.Contains(t, rec.Body.String(), "markdown")
}

func TestModelsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models  map[string]string `json:"models"`
		Default string            `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "google/gemini-2.0-flash-001", body.Default)
	require.Contains(t, body.Models, "google/gemini-2.0-flash-001")
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	echo := httptest.NewRecorder()
	srv.Handler().ServeHTTP(echo, req)
	require.Equal(t, "fixed-id", echo.Header().Get("X-Request-ID"))
}

func TestJobPersistedToStore(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/scrape", map[string]any{
		"url": "https://example.com",
	})
	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	stored, err := store.Load(context.Background(), resp.JobID)
	require.NoError(t, err)
	require.Equal(t, crawl.JobStatusCompleted, stored.Status)
}

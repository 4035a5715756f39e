package crawl

import (
	"time"
)

// Mode selects the orchestration behavior for a job.
type Mode string

// Supported job modes.
const (
	ModeScrape Mode = "scrape"
	ModeSearch Mode = "search"
	ModeAgent  Mode = "agent"
	ModeMap    Mode = "map"
	ModeCrawl  Mode = "crawl"
)

// Format selects the content representation returned per page.
type Format string

// Supported output formats.
const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// OutcomeStatus classifies the result of a single page fetch.
type OutcomeStatus string

// Fetch outcome values.
const (
	OutcomeOK              OutcomeStatus = "ok"
	OutcomeHTTPError       OutcomeStatus = "http_error"
	OutcomeTimeout         OutcomeStatus = "timeout"
	OutcomeBlockedByRobots OutcomeStatus = "blocked_by_robots"
	OutcomeRenderError     OutcomeStatus = "render_error"
)

// Selector names a CSS selector whose matches are captured per page.
type Selector struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Attr     string `json:"attr,omitempty"`
}

// JobRequest captures the per-job configuration requested by the client.
// It is immutable once a job starts.
type JobRequest struct {
	Mode          Mode       `json:"mode"`
	URLs          []string   `json:"urls"`
	Format        Format     `json:"format"`
	MaxDepth      int        `json:"max_depth"`
	MaxPages      int        `json:"max_pages"`
	BatchSize     int        `json:"batch_size"`
	BudgetSeconds int        `json:"budget_seconds,omitempty"`
	SameDomain    bool       `json:"same_domain"`
	IncludeLinks  bool       `json:"include_links"`
	IncludeImages bool       `json:"include_images"`
	UseBrowser    bool       `json:"use_browser"`
	Query         string     `json:"query,omitempty"`
	TopK          int        `json:"top_k,omitempty"`
	Instruction   string     `json:"instruction,omitempty"`
	Model         string     `json:"model,omitempty"`
	Selectors     []Selector `json:"selectors,omitempty"`
}

// Metadata holds document-level metadata extracted from a page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Keywords    string `json:"keywords"`
	Favicon     string `json:"favicon"`
	URL         string `json:"url"`
}

// Link is an anchor discovered on a page, resolved to an absolute URL.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Image is an img element discovered on a page, resolved to an absolute URL.
type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt"`
	Title string `json:"title"`
}

// ScoredChunk is a ranked text fragment returned by search mode.
type ScoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Page is the raw product of a Renderer call.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	HTML        string
	UsedBrowser bool
	Elapsed     time.Duration
}

// RenderOptions tunes a single Renderer call.
type RenderOptions struct {
	Timeout time.Duration
}

// FetchOutcome is the per-URL result produced by the fetch pipeline.
type FetchOutcome struct {
	URL        string
	Depth      int
	Status     OutcomeStatus
	StatusCode int
	HTML       string
	Links      []Link
	Error      string
	Retries    int
	FetchedAt  time.Time
	Elapsed    time.Duration
}

// OK reports whether the fetch produced usable content.
func (o FetchOutcome) OK() bool {
	return o.Status == OutcomeOK
}

// PageResult is one page's entry in a JobResult.
type PageResult struct {
	URL        string              `json:"url"`
	Depth      int                 `json:"depth"`
	Discovered int                 `json:"-"`
	Status     OutcomeStatus       `json:"status"`
	StatusCode int                 `json:"status_code,omitempty"`
	Content    string              `json:"content,omitempty"`
	Metadata   *Metadata           `json:"metadata,omitempty"`
	Links      []Link              `json:"links,omitempty"`
	LinksCount int                 `json:"links_count"`
	Images     []Image             `json:"images,omitempty"`
	Extracted  map[string][]string `json:"extracted,omitempty"`
	Error      string              `json:"error,omitempty"`
	FetchedAt  time.Time           `json:"fetched_at"`
	ElapsedMs  int64               `json:"elapsed_ms"`
}

// JobCounters tracks aggregate page stats per job.
type JobCounters struct {
	PagesAttempted  int `json:"pages_attempted"`
	PagesSucceeded  int `json:"pages_succeeded"`
	PagesFailed     int `json:"pages_failed"`
	SkippedByRobots int `json:"skipped_by_robots"`
}

// JobResult aggregates everything produced by one job.
type JobResult struct {
	JobID           string        `json:"job_id"`
	Request         JobRequest    `json:"request"`
	Status          JobStatus     `json:"status"`
	Pages           []PageResult  `json:"pages"`
	Counters        JobCounters   `json:"counters"`
	Ranked          []ScoredChunk `json:"ranked,omitempty"`
	TotalParagraphs int           `json:"total_paragraphs,omitempty"`
	AgentOutput     string        `json:"agent_output,omitempty"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

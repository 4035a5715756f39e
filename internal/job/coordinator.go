// Package job implements the per-job crawl orchestration: the coordinator
// owns one frontier and one bounded worker pool, tracks completion, and
// aggregates page results into a terminal JobResult. The registry maps job
// IDs to live coordinators for cross-request status polling.
package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
	"github.com/M4YAVI/crawlconsole/internal/frontier"
	"github.com/M4YAVI/crawlconsole/internal/metrics"
)

// maxWorkers caps the per-job pool regardless of the requested batch size.
const maxWorkers = 20

// crawlContentLimit bounds per-page content in crawl mode responses.
const crawlContentLimit = 5000

// PageFetcher resolves one URL into a FetchOutcome.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, depth int, useBrowser bool) (crawl.FetchOutcome, error)
}

// Coordinator runs a single job from seed URLs to a terminal status. The
// frontier and result accumulator are exclusively owned; only the robots
// cache and politeness state are shared across jobs (inside the fetcher).
type Coordinator struct {
	id        string
	req       crawl.JobRequest
	fetcher   PageFetcher
	extractor crawl.Extractor
	store     crawl.Store
	publisher crawl.Publisher
	topic     string
	clock     crawl.Clock
	logger    *zap.Logger

	frontier *frontier.Frontier
	expand   bool

	mu        sync.Mutex
	cond      *sync.Cond
	status    crawl.JobStatus
	cancelled bool
	failure   error
	active    int
	attempted int
	pages     []crawl.PageResult
	counters  crawl.JobCounters

	ranked          []crawl.ScoredChunk
	totalParagraphs int
	agentOutput     string
	searchHTML      string

	createdAt   time.Time
	completedAt *time.Time
	done        chan struct{}
	startOnce   sync.Once
}

// NewCoordinator builds a Coordinator for a validated request. The request is
// immutable from here on.
func NewCoordinator(
	id string,
	req crawl.JobRequest,
	fetcher PageFetcher,
	extractor crawl.Extractor,
	store crawl.Store,
	publisher crawl.Publisher,
	topic string,
	clock crawl.Clock,
	logger *zap.Logger,
) *Coordinator {
	maxDepth := req.MaxDepth
	expand := req.Mode == crawl.ModeMap
	if !expand {
		// Only map mode discovers new URLs; every other mode fetches
		// its seeds at depth 0 and nothing else.
		maxDepth = 0
	}

	// Hosts come from the normalized form so explicit default ports on a
	// seed do not defeat its own same-domain policy.
	seedHosts := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		norm, err := crawl.NormalizeURL(u)
		if err != nil {
			continue
		}
		if h := crawl.Host(norm); h != "" {
			seedHosts = append(seedHosts, h)
		}
	}

	c := &Coordinator{
		id:        id,
		req:       req,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
		frontier:  frontier.New(maxDepth, expand && req.SameDomain, seedHosts),
		expand:    expand,
		status:    crawl.JobStatusPending,
		createdAt: clock.Now(),
		done:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ID returns the job identifier.
func (c *Coordinator) ID() string { return c.id }

// Start seeds the frontier and launches the worker pool. It is idempotent
// and returns immediately; use AwaitCompletion or Status to observe progress.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		// Always cancellable so the watcher goroutine below exits once
		// the job finishes, budget or not.
		var runCtx context.Context
		var cancel context.CancelFunc
		if c.req.BudgetSeconds > 0 {
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(c.req.BudgetSeconds)*time.Second)
		} else {
			runCtx, cancel = context.WithCancel(ctx)
		}

		c.mu.Lock()
		c.status = crawl.JobStatusRunning
		c.mu.Unlock()

		for _, u := range c.req.URLs {
			c.frontier.Push(u, 0, "")
		}

		workers := c.req.BatchSize
		if workers < 1 {
			workers = 1
		}
		if workers > maxWorkers {
			workers = maxWorkers
		}

		// Wake blocked workers when the job context ends so the budget
		// timeout and external cancellation both stop new pops.
		go func() {
			<-runCtx.Done()
			c.mu.Lock()
			if c.status == crawl.JobStatusRunning && c.failure == nil {
				c.cancelled = true
			}
			c.cond.Broadcast()
			c.mu.Unlock()
		}()

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.worker(runCtx)
			}()
		}

		go func() {
			wg.Wait()
			// finalize first so the budget watcher sees a terminal
			// status and does not flag normal completion as cancelled
			c.finalize()
			cancel()
		}()
	})
}

// Cancel requests cooperative cancellation: in-flight fetches finish, no new
// frontier pops occur.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if !c.status.Terminal() {
		c.cancelled = true
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Status returns a consistent point-in-time copy of the job state, safe to
// call concurrently with running workers.
func (c *Coordinator) Status() crawl.JobResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// AwaitCompletion blocks until the job reaches a terminal state or the
// context ends.
func (c *Coordinator) AwaitCompletion(ctx context.Context) (crawl.JobResult, error) {
	select {
	case <-c.done:
		return c.Status(), nil
	case <-ctx.Done():
		return crawl.JobResult{}, fmt.Errorf("await job %s: %w", c.id, ctx.Err())
	}
}

// Done exposes the completion channel.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) worker(ctx context.Context) {
	for {
		entry, ok := c.nextEntry()
		if !ok {
			return
		}

		metrics.IncActiveWorkers()
		outcome, err := c.fetcher.Fetch(ctx, entry.URL, entry.Depth, c.req.UseBrowser)
		metrics.DecActiveWorkers()

		if err != nil {
			c.failInternal(err)
			return
		}
		result, links := c.buildResult(entry, outcome)
		if c.req.Mode == crawl.ModeSearch && outcome.OK() {
			// Ranking in postProcess needs the raw HTML, which page
			// results do not retain.
			c.mu.Lock()
			if c.searchHTML == "" {
				c.searchHTML = outcome.HTML
			}
			c.mu.Unlock()
		}
		c.completeEntry(entry, result, links)
	}
}

// nextEntry blocks until work is available or the job is finished. A worker
// may observe an empty frontier while another worker's in-flight fetch is
// about to discover more links, so emptiness alone never terminates: the
// active count must also be zero.
func (c *Coordinator) nextEntry() (frontier.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.cancelled || c.failure != nil {
			return frontier.Entry{}, false
		}
		if c.attempted >= c.req.MaxPages {
			c.frontier.Drain()
			return frontier.Entry{}, false
		}
		if entry, ok := c.frontier.Pop(); ok {
			c.attempted++
			c.active++
			c.counters.PagesAttempted++
			return entry, true
		}
		if c.active == 0 {
			return frontier.Entry{}, false
		}
		c.cond.Wait()
	}
}

// buildResult runs extraction outside the coordinator lock.
func (c *Coordinator) buildResult(entry frontier.Entry, outcome crawl.FetchOutcome) (crawl.PageResult, []crawl.Link) {
	result := crawl.PageResult{
		URL:        entry.Normalized,
		Depth:      entry.Depth,
		Discovered: entry.Discovered,
		Status:     outcome.Status,
		StatusCode: outcome.StatusCode,
		Error:      outcome.Error,
		FetchedAt:  outcome.FetchedAt,
		ElapsedMs:  outcome.Elapsed.Milliseconds(),
	}
	if !outcome.OK() {
		return result, nil
	}

	links := c.extractor.Links(outcome.HTML, entry.URL)
	result.LinksCount = len(links)

	meta := c.extractor.Metadata(outcome.HTML, entry.URL)
	result.Metadata = &meta

	if len(c.req.Selectors) > 0 {
		result.Extracted = c.extractor.Selectors(outcome.HTML, c.req.Selectors)
	}
	if c.req.IncludeLinks {
		result.Links = links
	}
	if c.req.IncludeImages {
		result.Images = c.extractor.Images(outcome.HTML, entry.URL)
	}

	if c.req.Mode != crawl.ModeMap {
		content, err := c.extractor.Convert(outcome.HTML, c.req.Format, c.req.IncludeLinks, c.req.IncludeImages)
		if err != nil {
			// The page was fetched; only extraction failed. Recorded
			// as a page failure without aborting the job.
			result.Error = fmt.Sprintf("extraction failed: %v", err)
			return result, links
		}
		if c.req.Mode == crawl.ModeCrawl && len(content) > crawlContentLimit {
			content = content[:crawlContentLimit]
		}
		result.Content = content
	}
	return result, links
}

func (c *Coordinator) completeEntry(entry frontier.Entry, result crawl.PageResult, links []crawl.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pages = append(c.pages, result)
	switch {
	case result.Status == crawl.OutcomeBlockedByRobots:
		c.counters.SkippedByRobots++
	case result.Status == crawl.OutcomeOK && result.Error == "":
		c.counters.PagesSucceeded++
	default:
		c.counters.PagesFailed++
	}

	if c.expand && result.Status == crawl.OutcomeOK {
		for _, link := range links {
			c.frontier.Push(link.URL, entry.Depth+1, entry.Normalized)
		}
	}

	c.active--
	c.cond.Broadcast()
}

func (c *Coordinator) failInternal(err error) {
	c.mu.Lock()
	if c.failure == nil {
		c.failure = err
	}
	c.active--
	c.cond.Broadcast()
	c.mu.Unlock()
	c.logger.Error("job failed on internal error", zap.String("job_id", c.id), zap.Error(err))
}

// finalize runs once after every worker has exited: post-processing for
// search/agent, result ordering, persistence, and the completion event.
func (c *Coordinator) finalize() {
	c.postProcess()

	c.mu.Lock()
	switch {
	case c.failure != nil:
		c.status = crawl.JobStatusFailed
	case c.cancelled:
		c.status = crawl.JobStatusCancelled
	default:
		c.status = crawl.JobStatusCompleted
	}

	// Map results surface BFS order reconstructed from stored depth and
	// discovery sequence, never from completion timing.
	sort.SliceStable(c.pages, func(i, j int) bool {
		if c.pages[i].Depth != c.pages[j].Depth {
			return c.pages[i].Depth < c.pages[j].Depth
		}
		return c.pages[i].Discovered < c.pages[j].Discovered
	})

	now := c.clock.Now()
	c.completedAt = &now
	result := c.snapshotLocked()
	c.mu.Unlock()

	metrics.ObserveJob(string(c.req.Mode), string(result.Status))

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c.store != nil {
		if err := c.store.Save(persistCtx, result); err != nil {
			c.logger.Error("persist job result", zap.String("job_id", c.id), zap.Error(err))
		}
	}
	c.publishCompletion(persistCtx, result)

	close(c.done)
}

// completionEvent is the payload published when a job reaches a terminal
// state.
type completionEvent struct {
	JobID       string            `json:"job_id"`
	Mode        crawl.Mode        `json:"mode"`
	Status      crawl.JobStatus   `json:"status"`
	Counters    crawl.JobCounters `json:"counters"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at"`
}

func (c *Coordinator) publishCompletion(ctx context.Context, result crawl.JobResult) {
	if c.publisher == nil {
		return
	}
	event := completionEvent{
		JobID:       result.JobID,
		Mode:        result.Request.Mode,
		Status:      result.Status,
		Counters:    result.Counters,
		CreatedAt:   result.CreatedAt,
		CompletedAt: result.CompletedAt,
	}
	if _, err := c.publisher.Publish(ctx, c.topic, event); err != nil {
		c.logger.Warn("publish completion event",
			zap.String("job_id", c.id), zap.Error(err))
	}
}

// postProcess applies the mode-specific extraction step that runs over the
// aggregate rather than per page.
func (c *Coordinator) postProcess() {
	c.mu.Lock()
	var firstOK *crawl.PageResult
	for i := range c.pages {
		if c.pages[i].Status == crawl.OutcomeOK {
			firstOK = &c.pages[i]
			break
		}
	}
	mode := c.req.Mode
	searchHTML := c.searchHTML
	c.mu.Unlock()

	if firstOK == nil {
		return
	}

	switch mode {
	case crawl.ModeSearch:
		ranked, total := c.extractor.Rank(searchHTML, c.req.Query, c.req.TopK)
		c.mu.Lock()
		c.ranked = ranked
		c.totalParagraphs = total
		c.mu.Unlock()
	case crawl.ModeAgent:
		instructCtx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		output, err := c.extractor.Instruct(instructCtx, firstOK.Content, c.req.Instruction, c.req.Model)
		c.mu.Lock()
		if err != nil {
			firstOK.Error = fmt.Sprintf("agent extraction failed: %v", err)
			c.counters.PagesSucceeded--
			c.counters.PagesFailed++
		} else {
			c.agentOutput = output
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) snapshotLocked() crawl.JobResult {
	pages := make([]crawl.PageResult, len(c.pages))
	copy(pages, c.pages)

	result := crawl.JobResult{
		JobID:           c.id,
		Request:         c.req,
		Status:          c.status,
		Pages:           pages,
		Counters:        c.counters,
		Ranked:          append([]crawl.ScoredChunk(nil), c.ranked...),
		TotalParagraphs: c.totalParagraphs,
		AgentOutput:     c.agentOutput,
		CreatedAt:       c.createdAt,
	}
	if c.failure != nil {
		result.Error = c.failure.Error()
	}
	if c.completedAt != nil {
		completed := *c.completedAt
		result.CompletedAt = &completed
	}
	return result
}

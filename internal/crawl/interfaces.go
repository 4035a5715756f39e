package crawl

import (
	"context"
	"time"
)

// Renderer fetches a URL and returns the raw page, optionally executing
// JavaScript depending on the implementation.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) (Page, error)
}

// Extractor converts raw HTML into the structured representations jobs ask
// for. Implementations must be safe for concurrent use.
type Extractor interface {
	Convert(html string, format Format, includeLinks, includeImages bool) (string, error)
	Metadata(html, baseURL string) Metadata
	Links(html, baseURL string) []Link
	Images(html, baseURL string) []Image
	Selectors(html string, selectors []Selector) map[string][]string
	Rank(html, query string, topK int) ([]ScoredChunk, int)
	Instruct(ctx context.Context, content, instruction, model string) (string, error)
}

// Store persists completed job results keyed by job ID.
type Store interface {
	Save(ctx context.Context, result JobResult) error
	Load(ctx context.Context, jobID string) (JobResult, error)
}

// Publisher pushes job completion events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (swappable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

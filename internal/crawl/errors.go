package crawl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Store implementations when no job result exists
// for the requested ID.
var ErrNotFound = errors.New("job not found")

// ErrRendererUnavailable indicates the renderer collaborator is permanently
// unavailable. It fails the whole job, unlike per-page fetch errors.
var ErrRendererUnavailable = errors.New("renderer unavailable")

// ErrInvalidRequest marks pre-start validation failures. Jobs rejected with
// it never start.
var ErrInvalidRequest = errors.New("invalid job request")

// Validate rejects requests that must never start a job. Field defaults are
// applied by the API layer before validation.
func (r JobRequest) Validate() error {
	switch r.Mode {
	case ModeScrape, ModeSearch, ModeAgent, ModeMap, ModeCrawl:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if len(r.URLs) == 0 {
		return fmt.Errorf("%w: at least one url required", ErrInvalidRequest)
	}
	for _, u := range r.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: empty url", ErrInvalidRequest)
		}
		if _, err := NormalizeURL(u); err != nil {
			return fmt.Errorf("%w: url %q: %v", ErrInvalidRequest, u, err)
		}
	}
	if r.Mode != ModeCrawl && len(r.URLs) != 1 {
		return fmt.Errorf("%w: mode %s takes exactly one url", ErrInvalidRequest, r.Mode)
	}
	switch r.Format {
	case FormatMarkdown, FormatText, FormatHTML:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, r.Format)
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidRequest)
	}
	if r.MaxPages <= 0 {
		return fmt.Errorf("%w: max_pages must be > 0", ErrInvalidRequest)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0", ErrInvalidRequest)
	}
	if r.Mode == ModeSearch && strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query required for search mode", ErrInvalidRequest)
	}
	if r.Mode == ModeSearch && r.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be > 0", ErrInvalidRequest)
	}
	if r.Mode == ModeAgent && strings.TrimSpace(r.Instruction) == "" {
		return fmt.Errorf("%w: instruction required for agent mode", ErrInvalidRequest)
	}
	return nil
}

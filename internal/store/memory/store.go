// Package memory provides an in-process Store for tests and single-node
// development runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// Store keeps job results in a map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	results map[string]crawl.JobResult
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{results: make(map[string]crawl.JobResult)}
}

// Save records a job result, replacing any previous result for the same ID.
func (s *Store) Save(_ context.Context, result crawl.JobResult) error {
	if result.JobID == "" {
		return fmt.Errorf("save result: %w: empty job id", crawl.ErrInvalidRequest)
	}
	s.mu.Lock()
	s.results[result.JobID] = result
	s.mu.Unlock()
	return nil
}

// Load returns the stored result for a job ID.
func (s *Store) Load(_ context.Context, jobID string) (crawl.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[jobID]
	if !ok {
		return crawl.JobResult{}, fmt.Errorf("load job %s: %w", jobID, crawl.ErrNotFound)
	}
	return result, nil
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
